package cache

import (
	"strconv"

	"github.com/IvanBrykalov/tilewindow/internal/util"
)

// Coord identifies a cell on the infinite tile grid.
type Coord struct {
	X int
	Z int
}

// String renders the coordinate as "x<X>z<Z>". The form is unique per cell,
// so it can be used as a key outside of Go maps (URLs, log fields).
func (c Coord) String() string {
	return "x" + strconv.Itoa(c.X) + "z" + strconv.Itoa(c.Z)
}

// Vec2 holds a per-axis value on the horizontal plane (tile size, offset).
type Vec2 struct {
	X float64
	Z float64
}

// Vec3 is a world-space position. Y is ignored by the tile grid.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// TileAt converts a world position to the tile containing it:
// floor((pos - offset) / size) per axis.
func TileAt(pos Vec3, size, offset Vec2) Coord {
	return Coord{
		X: util.FloorToInt((pos.X - offset.X) / size.X),
		Z: util.FloorToInt((pos.Z - offset.Z) / size.Z),
	}
}

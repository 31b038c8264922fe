package cache

import "github.com/IvanBrykalov/tilewindow/internal/util"

// tracker turns a continuous viewer position into the center tile of the
// view window and detects when that center moves.
type tracker struct {
	size   Vec2
	offset Vec2

	// view distance in tile units per axis
	vdx float64
	vdz float64

	center Coord
	last   Coord
}

func newTracker(size, offset Vec2, viewDistance float64, pos Vec3) tracker {
	t := tracker{size: size, offset: offset}
	t.configure(viewDistance)
	t.center = TileAt(pos, size, offset)
	t.last = t.center
	return t
}

// configure derives the per-axis radii from a world-space view distance.
func (t *tracker) configure(viewDistance float64) {
	t.vdx = viewDistance / t.size.X
	t.vdz = viewDistance / t.size.Z
}

// locate recomputes the center tile for pos and reports whether it differs
// from the last committed center.
func (t *tracker) locate(pos Vec3) bool {
	t.center = TileAt(pos, t.size, t.offset)
	return t.center != t.last
}

// commit records the current center as the last one seen.
func (t *tracker) commit() { t.last = t.center }

// contains reports whether c lies in the window [center±vdx]×[center±vdz]
// (bounds inclusive).
func (t *tracker) contains(c Coord) bool {
	return float64(util.AbsInt(c.X-t.center.X)) <= t.vdx &&
		float64(util.AbsInt(c.Z-t.center.Z)) <= t.vdz
}

// spiralLimit is the largest ring size the spiral search visits; by then the
// spiral has covered the bounding box of the window.
func (t *tracker) spiralLimit() float64 {
	return 2*max(t.vdx, t.vdz) + 1
}

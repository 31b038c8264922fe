package cache

import (
	"math"
	"testing"
)

// Fuzz TileAt: the returned tile must contain the position, and the window
// test must agree with the per-axis distance.
func FuzzTileAt(f *testing.F) {
	f.Add(0.0, 0.0, 1.0, 1.0, 0.0, 0.0)
	f.Add(-0.5, 31.99, 32.0, 32.0, 0.0, 0.0)
	f.Add(1e6, -1e6, 16.0, 64.0, 8.0, -8.0)
	f.Add(-1e-9, 1e-9, 0.5, 0.25, 0.1, 0.1)

	f.Fuzz(func(t *testing.T, px, pz, sx, sz, ox, oz float64) {
		// Keep inputs in a range where float division is exact enough to
		// reason about tile borders.
		for _, v := range []float64{px, pz, ox, oz} {
			if math.IsNaN(v) || math.Abs(v) > 1e9 {
				return
			}
		}
		if !(sx >= 1e-3 && sx <= 1e6) || !(sz >= 1e-3 && sz <= 1e6) {
			return
		}

		size, offset := Vec2{X: sx, Z: sz}, Vec2{X: ox, Z: oz}
		c := TileAt(Vec3{X: px, Z: pz}, size, offset)

		fx := (px - ox) / sx
		fz := (pz - oz) / sz
		if float64(c.X) > fx || fx >= float64(c.X)+1 {
			t.Fatalf("x: tile %d must contain %v", c.X, fx)
		}
		if float64(c.Z) > fz || fz >= float64(c.Z)+1 {
			t.Fatalf("z: tile %d must contain %v", c.Z, fz)
		}

		tr := newTracker(size, offset, sx, Vec3{X: px, Z: pz})
		if !tr.contains(c) || !tr.contains(Coord{X: c.X + 1, Z: c.Z}) {
			t.Fatal("center and its x neighbour must be inside a one-tile window")
		}
	})
}

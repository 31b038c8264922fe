package cache

import "testing"

func TestTileAt(t *testing.T) {
	t.Parallel()

	size := Vec2{X: 32, Z: 16}
	cases := []struct {
		pos    Vec3
		offset Vec2
		want   Coord
	}{
		{Vec3{X: 0, Z: 0}, Vec2{}, Coord{0, 0}},
		{Vec3{X: 31.9, Z: 15.9}, Vec2{}, Coord{0, 0}},
		{Vec3{X: 32, Z: 16}, Vec2{}, Coord{1, 1}},
		{Vec3{X: -0.1, Z: -0.1}, Vec2{}, Coord{-1, -1}},
		{Vec3{X: -32, Z: -16.5}, Vec2{}, Coord{-1, -2}},
		{Vec3{X: 10, Y: 1e9, Z: 10}, Vec2{X: 16, Z: 16}, Coord{-1, -1}},
		{Vec3{X: 48, Z: 16}, Vec2{X: 16, Z: 0}, Coord{1, 1}},
	}
	for _, tc := range cases {
		if got := TileAt(tc.pos, size, tc.offset); got != tc.want {
			t.Fatalf("TileAt(%v, offset %v) want %s, got %s", tc.pos, tc.offset, tc.want, got)
		}
	}
}

func TestTracker_RadiiPerAxis(t *testing.T) {
	t.Parallel()

	tr := newTracker(Vec2{X: 32, Z: 64}, Vec2{}, 128, Vec3{})
	if tr.vdx != 4 || tr.vdz != 2 {
		t.Fatalf("radii want (4, 2), got (%v, %v)", tr.vdx, tr.vdz)
	}
	if !tr.contains(Coord{X: 4, Z: -2}) {
		t.Fatal("window bounds must be inclusive")
	}
	if tr.contains(Coord{X: 0, Z: 3}) {
		t.Fatal("z radius must bound the window along z")
	}
	if tr.contains(Coord{X: 5, Z: 0}) {
		t.Fatal("x radius must bound the window along x")
	}
	if tr.spiralLimit() != 9 {
		t.Fatalf("spiral limit want 9, got %v", tr.spiralLimit())
	}

	tr.configure(48)
	if tr.vdx != 1.5 || tr.vdz != 0.75 {
		t.Fatalf("radii want (1.5, 0.75), got (%v, %v)", tr.vdx, tr.vdz)
	}
	if tr.contains(Coord{X: 2}) || !tr.contains(Coord{X: 1}) || tr.contains(Coord{Z: 1}) {
		t.Fatal("fractional radii must round the window down")
	}
}

func TestTracker_LocateAndCommit(t *testing.T) {
	t.Parallel()

	tr := newTracker(Vec2{X: 1, Z: 1}, Vec2{}, 1, Vec3{X: 0.5, Z: 0.5})
	if tr.locate(Vec3{X: 0.9, Z: 0.1}) {
		t.Fatal("moving inside the center tile must not report a change")
	}
	if !tr.locate(Vec3{X: 1.2, Z: 0.1}) {
		t.Fatal("crossing a tile border must report a change")
	}
	if !tr.locate(Vec3{X: 1.3, Z: 0.1}) {
		t.Fatal("change must be reported until committed")
	}
	tr.commit()
	if tr.locate(Vec3{X: 1.4, Z: 0.9}) {
		t.Fatal("committed center must not report a change")
	}
	if tr.center != (Coord{X: 1}) {
		t.Fatalf("center want x1z0, got %s", tr.center)
	}
}

func TestCoordString(t *testing.T) {
	t.Parallel()

	if s := (Coord{X: -3, Z: 12}).String(); s != "x-3z12" {
		t.Fatalf("want x-3z12, got %q", s)
	}
}

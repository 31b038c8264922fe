package synth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/IvanBrykalov/tilewindow/model"
)

func TestGeometry_Deterministic(t *testing.T) {
	t.Parallel()

	a := New(Options{Seed: 7}).Geometry(3, -2)
	b := New(Options{Seed: 7}).Geometry(3, -2)
	if !slices.Equal(a.Positions, b.Positions) {
		t.Fatal("same seed and tile must give the same mesh")
	}
	if c := New(Options{Seed: 8}).Geometry(3, -2); slices.Equal(a.Positions, c.Positions) {
		t.Fatal("a different seed must change the mesh")
	}
	if a.Vertices() != 8*8*6 {
		t.Fatalf("want %d vertices, got %d", 8*8*6, a.Vertices())
	}
	if len(a.Normals) != len(a.Positions) || len(a.Colors) != len(a.Positions) || len(a.UVs) != 2*a.Vertices() {
		t.Fatal("attribute lengths must match the vertex count")
	}
}

// Neighbouring tiles must agree on the height of every shared vertex.
func TestGeometry_Seamless(t *testing.T) {
	t.Parallel()

	l := New(Options{Seed: 1, Resolution: 4})
	type key struct{ x, z float32 }
	seen := make(map[key]float32)
	shared := 0
	for _, c := range [][2]int{{-1, 0}, {0, 0}, {0, 1}, {-1, 1}} {
		g := l.Geometry(c[0], c[1])
		for i := 0; i < len(g.Positions); i += 3 {
			k := key{g.Positions[i], g.Positions[i+2]}
			y := g.Positions[i+1]
			if prev, ok := seen[k]; ok {
				if prev != y {
					t.Fatalf("seam at %v: %v != %v", k, prev, y)
				}
				shared++
				continue
			}
			seen[k] = y
		}
	}
	if shared == 0 {
		t.Fatal("tiles must share border vertices")
	}
}

func TestLoadTile(t *testing.T) {
	t.Parallel()

	l := New(Options{Resolution: 2})
	m, err := l.LoadTile(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("LoadTile: %v", err)
	}
	if g, ok := m.(*model.Geometry); !ok || g.Vertices() != 24 {
		t.Fatalf("want a 24 vertex geometry, got %T", m)
	}
	if l.Calls() != 1 {
		t.Fatalf("Calls want 1, got %d", l.Calls())
	}
}

func TestLoadTile_FailureRate(t *testing.T) {
	t.Parallel()

	always := New(Options{FailureRate: 1})
	if _, err := always.LoadTile(context.Background(), 1, 1); !errors.Is(err, ErrInjected) {
		t.Fatalf("want ErrInjected, got %v", err)
	}

	some := New(Options{FailureRate: 0.5})
	failed := 0
	for i := 0; i < 200; i++ {
		if _, err := some.LoadTile(context.Background(), i, 0); err != nil {
			failed++
		}
	}
	if failed < 50 || failed > 150 {
		t.Fatalf("failure rate 0.5 gave %d/200 failures", failed)
	}
}

func TestLoadTile_LatencyHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Options{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := l.LoadTile(ctx, 0, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("canceled load must return promptly")
	}
}

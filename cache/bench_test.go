package cache

import (
	"context"
	"testing"
)

type benchModel struct{}

func (benchModel) Dispose() {}

// benchmarkWalk moves a viewer one tile along X per iteration, so every step
// evicts a column and loads a new one.
func benchmarkWalk(b *testing.B, viewDistance float64) {
	loader := LoaderFunc(func(context.Context, int, int) (Model, error) { return benchModel{}, nil })
	m, err := New(Options{ViewDistance: viewDistance, TileSize: Vec2{X: 1, Z: 1}, Loader: loader})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = m.Close() })
	m.Update()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.SetPosition(Vec3{X: float64(i) + 0.5, Z: 0.5})
	}
}

func BenchmarkManager_Walk_R4(b *testing.B)  { benchmarkWalk(b, 4) }
func BenchmarkManager_Walk_R16(b *testing.B) { benchmarkWalk(b, 16) }

// BenchmarkWindow_Spiral measures a full spiral scan over a loaded window,
// the cost of a pump step that finds nothing to do.
func BenchmarkWindow_Spiral(b *testing.B) {
	h := newWindowHarness(16, 1<<12)
	h.w.update()
	h.pumpAll()
	for _, req := range h.rec.reqs {
		h.succeed(req)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if h.w.loadNextTile() {
			b.Fatal("window must be full")
		}
	}
}

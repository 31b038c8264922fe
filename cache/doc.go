// Package cache keeps a sliding window of grid tiles loaded around a moving
// viewer: tiles entering the window are loaded nearest-first, tiles leaving
// it are released, and the number of concurrent loads is bounded.
//
// Design
//
//   - Grid: a world position maps to the center tile by
//     floor((pos - TileOffset) / TileSize) per axis. The window is the
//     rectangle center±(ViewDistance/TileSize) on X and Z, bounds inclusive.
//
//   - Storage: a map[Coord]*tile holds one entry per cell. An entry is
//     created in the loading state when its load is dispatched, becomes
//     ready when the model arrives, and is disposed (model detached from the
//     Scene and released) when it leaves the window or the manager closes.
//
//   - Search: the next cell to load is found by a square spiral walked
//     outward from the center, so the view fills in from the viewer outward.
//
//   - Concurrency: one event loop goroutine owns all state. Public calls are
//     executed on it; loader calls run on their own goroutines and post
//     results back. No locks guard the cache.
//
//   - Pump: each step dispatches at most one load and then yields to queued
//     events before the next step. A saturated pump (MaxConcurrentLoads
//     loads pending, 8 by default) resumes on the next completion; a pump
//     with nothing left to load stays idle until the next Update.
//
//   - Staleness: every entry carries the generation of the load that created
//     it. A result is installed only if the entry under its cell still has
//     that generation and the manager is open; otherwise its model is
//     released on arrival.
//
//   - Failures: a failed load frees its slot and drops the entry. The cell is
//     skipped until the next Update; errors are logged, never returned.
//
//   - Metrics: Options.Metrics receives load, disposal and size signals.
//     NoopMetrics is the default; see package metrics/prom for Prometheus.
//
// Basic usage
//
//	m, err := cache.New(cache.Options{
//	    ViewDistance: 1000,
//	    TileSize:     cache.Vec2{X: 32, Z: 32},
//	    Loader:       loader, // e.g. httploader.New(...)
//	    Scene:        graph,  // e.g. scene.NewGraph(nil)
//	})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	m.Update()                              // load around the start position
//	m.SetPosition(cache.Vec3{X: 250, Z: 40}) // move the viewer
package cache

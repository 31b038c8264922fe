package cache

import (
	"context"
	"errors"
	"time"

	"github.com/IvanBrykalov/tilewindow/pkg/logger"
)

// loadRequest is handed to the dispatcher when the window admits a tile.
type loadRequest struct {
	coord Coord
	gen   uint64
}

// loadResult is posted back to the event loop when a loader call returns.
type loadResult struct {
	coord Coord
	gen   uint64
	model Model
	err   error
	took  time.Duration
}

// pumpState tells the event loop what the load pump wants next.
type pumpState uint8

const (
	// pumpIdle: nothing left to load (or closed); wait for the next Update.
	pumpIdle pumpState = iota
	// pumpArmed: run another step once pending events are handled.
	pumpArmed
	// pumpSaturated: every slot is taken; the next completion re-arms the pump.
	pumpSaturated
)

// window is the tile cache proper: the entries around the center tile, the
// in-flight accounting and the spiral search. It is not safe for concurrent
// use; the manager's event loop owns it.
type window struct {
	tr tracker

	// ---- cache state ----
	tiles       map[Coord]*tile
	inFlight    int
	maxInFlight int
	closed      bool
	nextGen     uint64

	// failed holds cells whose load failed during the current update cycle.
	// They are skipped until the next update.
	failed map[Coord]struct{}

	scene    Scene
	viewport Viewport
	metrics  Metrics
	log      logger.Logger

	dispatch func(loadRequest)
}

// newWindow builds a window from fully defaulted Options.
func newWindow(opt Options, dispatch func(loadRequest)) *window {
	return &window{
		tr:          newTracker(opt.TileSize, opt.TileOffset, opt.ViewDistance, opt.Position),
		tiles:       make(map[Coord]*tile),
		maxInFlight: opt.MaxConcurrentLoads,
		failed:      make(map[Coord]struct{}),
		scene:       opt.Scene,
		viewport:    opt.Viewport,
		metrics:     opt.Metrics,
		log:         opt.Logger,
		dispatch:    dispatch,
	}
}

// setPosition moves the center tile. It reports whether the window must be
// updated; the caller commits the center after the update ran.
func (w *window) setPosition(pos Vec3) bool {
	if w.closed {
		return false
	}
	return w.tr.locate(pos)
}

// update starts a new cycle: failed cells become eligible again and tiles
// outside the window are evicted. The caller runs the pump afterwards.
func (w *window) update() {
	if w.closed {
		return
	}
	clear(w.failed)
	w.removeFarTiles()
}

// pump performs one step of the load pump: dispatch at most one tile.
func (w *window) pump() pumpState {
	if w.closed {
		return pumpIdle
	}
	if w.inFlight >= w.maxInFlight {
		return pumpSaturated
	}
	if !w.loadNextTile() {
		return pumpIdle
	}
	return pumpArmed
}

// removeFarTiles disposes every tile outside the window around the current center.
func (w *window) removeFarTiles() {
	evicted := 0
	for c, t := range w.tiles {
		if w.tr.contains(c) {
			continue
		}
		t.dispose(w.scene)
		delete(w.tiles, c)
		w.metrics.Disposed(DisposeEvicted)
		evicted++
	}
	if evicted > 0 {
		w.log.Debug("evicted far tiles", "count", evicted, "center", w.tr.center.String())
		w.viewport.MarkDirty()
		w.reportSize()
	}
}

// removeAll disposes every tile and empties the cache.
func (w *window) removeAll(reason DisposeReason) {
	for c, t := range w.tiles {
		t.dispose(w.scene)
		delete(w.tiles, c)
		w.metrics.Disposed(reason)
	}
	w.viewport.MarkDirty()
	w.reportSize()
}

// close marks the window closed and disposes every tile. Results that arrive
// later only release their models.
func (w *window) close() {
	w.closed = true
	w.removeAll(DisposeClosed)
}

// loadNextTile walks a square spiral outward from the center and dispatches
// the first cell that is missing from the cache. It reports whether a load
// was dispatched.
func (w *window) loadNextTile() bool {
	cx, cz := w.tr.center.X, w.tr.center.Z
	limit := w.tr.spiralLimit()

	x, z := 0, 0
	d, m := 1, 1
	for float64(m) <= limit {
		for 2*x*d < m {
			if w.tryLoadTile(cx+x, cz+z) {
				return true
			}
			x += d
		}
		for 2*z*d < m {
			if w.tryLoadTile(cx+x, cz+z) {
				return true
			}
			z += d
		}
		d = -d
		m++
	}
	return false
}

// tryLoadTile dispatches a load for (x, z) unless the window is closed, the
// cell is outside the window, already cached (loading or ready), or failed
// during this cycle.
func (w *window) tryLoadTile(x, z int) bool {
	if w.closed {
		return false
	}
	c := Coord{X: x, Z: z}
	if !w.tr.contains(c) {
		return false
	}
	if _, ok := w.tiles[c]; ok {
		return false
	}
	if _, ok := w.failed[c]; ok {
		return false
	}

	w.nextGen++
	t := &tile{coord: c, state: StateLoading, gen: w.nextGen}
	w.inFlight++
	w.tiles[c] = t

	w.metrics.LoadStarted()
	w.reportSize()
	w.dispatch(loadRequest{coord: c, gen: t.gen})
	return true
}

// complete applies a loader result. Every result frees its slot exactly once;
// only a result for the live entry of its cell, on an open window, is installed.
func (w *window) complete(res loadResult) {
	w.releaseSlot()
	w.metrics.LoadFinished(res.err == nil, res.took)

	t := w.tiles[res.coord]
	current := t != nil && t.gen == res.gen && t.state == StateLoading

	if res.err != nil {
		if res.model != nil {
			res.model.Dispose()
		}
		if current {
			t.dispose(w.scene)
			delete(w.tiles, res.coord)
			w.failed[res.coord] = struct{}{}
		}
		w.metrics.Disposed(DisposeFailed)
		if w.closed && errors.Is(res.err, context.Canceled) {
			w.log.Debug("tile load canceled", "tile", res.coord.String())
		} else {
			w.log.Warn("tile load failed", "tile", res.coord.String(), "error", res.err)
		}
		w.reportSize()
		return
	}

	if w.closed || !current {
		res.model.Dispose()
		w.metrics.Disposed(DisposeStale)
		w.log.Debug("discarded stale tile", "tile", res.coord.String(), "closed", w.closed)
		w.reportSize()
		return
	}

	t.setModel(w.scene, res.model)
	w.viewport.MarkDirty()
	w.reportSize()
}

// releaseSlot decrements the in-flight counter, never below zero.
func (w *window) releaseSlot() {
	w.inFlight--
	if w.inFlight < 0 {
		w.inFlight = 0
	}
}

func (w *window) reportSize() {
	w.metrics.Size(len(w.tiles), w.inFlight)
}

// snapshot lists the cached tiles.
func (w *window) snapshot() []TileInfo {
	out := make([]TileInfo, 0, len(w.tiles))
	for c, t := range w.tiles {
		out = append(out, TileInfo{Coord: c, State: t.state})
	}
	return out
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/tilewindow/pkg/logger"
)

var (
	// ErrNoLoader is returned by New when Options.Loader is nil.
	ErrNoLoader = errors.New("cache: no Loader provided")
	// ErrInvalidTileSize is returned by New when a tile size axis is not positive.
	ErrInvalidTileSize = errors.New("cache: tile size must be > 0 on both axes")
	// ErrClosed is returned by Close on a manager that is already closed.
	ErrClosed = errors.New("cache: manager closed")

	errNilModel = errors.New("cache: loader returned a nil model")
)

// manager runs the window on a single event loop goroutine. Public calls,
// loader results and pump steps are all serialized there, so the window
// needs no locking; stale results are told apart by generation.
type manager struct {
	w   *window
	opt Options

	calls   chan func()
	results chan loadResult // capacity == MaxConcurrentLoads, so loaders never block

	// pump is only touched on the event loop.
	pump pumpState

	// loadCtx is the parent of every loader call; Close cancels it.
	loadCtx    context.Context
	cancelLoad context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{} // closed when the event loop exits

	// final holds the tracker as Close left it; read once done is closed.
	final tracker
}

// New constructs a Manager with the provided Options and starts its event loop.
// Defaults:
//   - MaxConcurrentLoads <= 0 -> DefaultMaxConcurrentLoads
//   - nil Scene / Viewport     -> no-op
//   - nil Metrics              -> NoopMetrics
//   - nil Logger               -> logger.Nop()
//
// No tile is loaded until the first Update or position change.
func New(opt Options) (Manager, error) {
	if opt.Loader == nil {
		return nil, ErrNoLoader
	}
	if !(opt.TileSize.X > 0) || !(opt.TileSize.Z > 0) {
		return nil, ErrInvalidTileSize
	}
	opt = withDefaults(opt)

	ctx, cancel := context.WithCancel(context.Background())
	m := &manager{
		opt:        opt,
		calls:      make(chan func()),
		results:    make(chan loadResult, opt.MaxConcurrentLoads),
		loadCtx:    ctx,
		cancelLoad: cancel,
		done:       make(chan struct{}),
	}
	m.w = newWindow(opt, m.dispatch)

	go m.loop()
	return m, nil
}

// withDefaults fills the optional fields of opt.
func withDefaults(opt Options) Options {
	if opt.MaxConcurrentLoads <= 0 {
		opt.MaxConcurrentLoads = DefaultMaxConcurrentLoads
	}
	if opt.Scene == nil {
		opt.Scene = noopScene{}
	}
	if opt.Viewport == nil {
		opt.Viewport = noopViewport{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = logger.Nop()
	}
	return opt
}

// ---- Manager implementation ----

func (m *manager) SetPosition(pos Vec3) {
	if m.closed.Load() {
		return
	}
	m.do(func() {
		if m.w.setPosition(pos) {
			m.update()
			m.w.tr.commit()
		}
	})
}

func (m *manager) SetViewDistance(d float64) {
	if m.closed.Load() {
		return
	}
	m.do(func() {
		if m.w.closed {
			return
		}
		m.w.tr.configure(d)
		m.update()
	})
}

func (m *manager) Update() {
	if m.closed.Load() {
		return
	}
	m.do(m.update)
}

// Center keeps reporting the last center after Close.
func (m *manager) Center() Coord {
	var c Coord
	if !m.do(func() { c = m.w.tr.center }) {
		return m.final.center
	}
	return c
}

// ViewRadii keeps reporting the last radii after Close.
func (m *manager) ViewRadii() (vdx, vdz float64) {
	if !m.do(func() { vdx, vdz = m.w.tr.vdx, m.w.tr.vdz }) {
		return m.final.vdx, m.final.vdz
	}
	return vdx, vdz
}

func (m *manager) Len() int {
	n := 0
	m.do(func() { n = len(m.w.tiles) })
	return n
}

func (m *manager) InFlight() int {
	n := 0
	m.do(func() { n = m.w.inFlight })
	return n
}

func (m *manager) Tiles() []TileInfo {
	var out []TileInfo
	m.do(func() { out = m.w.snapshot() })
	return out
}

// Close disposes every tile, cancels pending loads and waits until each of
// them has reported, so no model outlives the manager.
func (m *manager) Close() error {
	err := ErrClosed
	m.closeOnce.Do(func() {
		err = nil
		m.closed.Store(true)
		m.do(func() {
			m.w.close()
			m.final = m.w.tr
			m.pump = pumpIdle
			m.opt.Logger.Info("tile manager closed", "pending_loads", m.w.inFlight)
		})
		m.cancelLoad()
	})
	<-m.done
	return err
}

// ---- event loop ----

// loop serializes every mutation of the window. When the pump is armed it
// first drains whatever is already queued, then takes one pump step: the
// pump yields to other work between dispatches instead of spinning.
func (m *manager) loop() {
	defer close(m.done)
	for {
		if m.w.closed && m.w.inFlight == 0 {
			return
		}

		if m.pump == pumpArmed {
			select {
			case fn := <-m.calls:
				fn()
				continue
			case res := <-m.results:
				m.complete(res)
				continue
			default:
			}
			m.step()
			continue
		}

		select {
		case fn := <-m.calls:
			fn()
		case res := <-m.results:
			m.complete(res)
		}
	}
}

// do runs fn on the event loop and waits for it. It reports false when the
// loop has already stopped.
func (m *manager) do(fn func()) bool {
	ack := make(chan struct{})
	select {
	case m.calls <- func() { fn(); close(ack) }:
	case <-m.done:
		return false
	}
	<-ack
	return true
}

// update evicts far tiles and restarts the pump. Event loop only.
func (m *manager) update() {
	m.w.update()
	m.step()
}

// step runs one pump step; its outcome replaces any pending continuation,
// so at most one is ever scheduled. Event loop only.
func (m *manager) step() {
	m.pump = m.w.pump()
}

// complete applies a loader result and wakes a saturated pump. Event loop only.
func (m *manager) complete(res loadResult) {
	m.w.complete(res)
	if m.pump == pumpSaturated {
		m.pump = pumpArmed
	}
}

// dispatch starts the loader for req on its own goroutine. Event loop only.
func (m *manager) dispatch(req loadRequest) {
	go func() {
		ctx := m.loadCtx
		if m.opt.LoadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.opt.LoadTimeout)
			defer cancel()
		}

		start := m.now()
		model, err := m.load(ctx, req.coord)
		m.results <- loadResult{
			coord: req.coord,
			gen:   req.gen,
			model: model,
			err:   err,
			took:  m.now().Sub(start),
		}
	}()
}

// load calls the loader, turning panics and nil models into errors so that
// every dispatched load reports exactly once.
func (m *manager) load(ctx context.Context, c Coord) (model Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			model, err = nil, fmt.Errorf("cache: loader panic for tile %s: %v", c, r)
		}
	}()
	model, err = m.opt.Loader.LoadTile(ctx, c.X, c.Z)
	if isNil(model) {
		model = nil
		if err == nil {
			err = errNilModel
		}
	}
	return model, err
}

// isNil reports whether mo is nil or an interface holding a nil pointer,
// map, slice, func or chan.
func isNil(mo Model) bool {
	if mo == nil {
		return true
	}
	v := reflect.ValueOf(mo)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (m *manager) now() time.Time {
	if m.opt.Clock != nil {
		return m.opt.Clock.Now()
	}
	return time.Now()
}

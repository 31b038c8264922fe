package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---- test doubles ----

// fakeModel counts how often it was disposed.
type fakeModel struct {
	c        Coord
	disposed atomic.Int32
}

func (m *fakeModel) Dispose() { m.disposed.Add(1) }

// fakeScene records the models attached to it.
type fakeScene struct {
	mu       sync.Mutex
	attached map[Coord]Model
	detaches int
}

func newFakeScene() *fakeScene { return &fakeScene{attached: make(map[Coord]Model)} }

func (s *fakeScene) Attach(c Coord, m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[c] = m
}

func (s *fakeScene) Detach(c Coord, m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached[c] == m {
		delete(s.attached, c)
	}
	s.detaches++
}

func (s *fakeScene) has(c Coord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attached[c]
	return ok
}

func (s *fakeScene) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached)
}

// countViewport counts redraw requests.
type countViewport struct{ n atomic.Int32 }

func (v *countViewport) MarkDirty() { v.n.Add(1) }

// countMetrics tallies the hooks it receives.
type countMetrics struct {
	mu       sync.Mutex
	started  int
	ok, fail int
	disposed map[DisposeReason]int
	resident int
	inFlight int
}

func newCountMetrics() *countMetrics { return &countMetrics{disposed: make(map[DisposeReason]int)} }

func (m *countMetrics) LoadStarted() {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
}

func (m *countMetrics) LoadFinished(ok bool, _ time.Duration) {
	m.mu.Lock()
	if ok {
		m.ok++
	} else {
		m.fail++
	}
	m.mu.Unlock()
}

func (m *countMetrics) Disposed(r DisposeReason) {
	m.mu.Lock()
	m.disposed[r]++
	m.mu.Unlock()
}

func (m *countMetrics) Size(resident, inFlight int) {
	m.mu.Lock()
	m.resident, m.inFlight = resident, inFlight
	m.mu.Unlock()
}

func (m *countMetrics) disposedFor(r DisposeReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed[r]
}

// modelLedger remembers every model a loader handed out.
type modelLedger struct {
	mu     sync.Mutex
	models []*fakeModel
}

func (l *modelLedger) newModel(x, z int) *fakeModel {
	m := &fakeModel{c: Coord{X: x, Z: z}}
	l.mu.Lock()
	l.models = append(l.models, m)
	l.mu.Unlock()
	return m
}

// checkAllDisposedOnce fails unless every model was disposed exactly once.
func (l *modelLedger) checkAllDisposedOnce(t *testing.T) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.models {
		if n := m.disposed.Load(); n != 1 {
			t.Fatalf("model for %s disposed %d times, must be exactly once", m.c, n)
		}
	}
}

// instantLoader returns a fresh model right away and counts calls per cell.
type instantLoader struct {
	modelLedger
	callsMu sync.Mutex
	calls   map[Coord]int
}

func newInstantLoader() *instantLoader { return &instantLoader{calls: make(map[Coord]int)} }

func (l *instantLoader) LoadTile(_ context.Context, x, z int) (Model, error) {
	l.callsMu.Lock()
	l.calls[Coord{X: x, Z: z}]++
	l.callsMu.Unlock()
	return l.newModel(x, z), nil
}

func (l *instantLoader) callsFor(c Coord) int {
	l.callsMu.Lock()
	defer l.callsMu.Unlock()
	return l.calls[c]
}

func (l *instantLoader) total() int {
	l.callsMu.Lock()
	defer l.callsMu.Unlock()
	n := 0
	for _, v := range l.calls {
		n += v
	}
	return n
}

// gateLoader blocks every load until the gate opens or ctx is done, and
// tracks the peak number of concurrent calls.
type gateLoader struct {
	modelLedger
	gate    chan struct{}
	started atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
}

func newGateLoader() *gateLoader { return &gateLoader{gate: make(chan struct{})} }

func (l *gateLoader) open() { close(l.gate) }

func (l *gateLoader) LoadTile(ctx context.Context, x, z int) (Model, error) {
	l.started.Add(1)
	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-l.gate:
		return l.newModel(x, z), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ---- window harness ----

// recorder collects the requests a window dispatches.
type recorder struct{ reqs []loadRequest }

func (r *recorder) dispatch(req loadRequest) { r.reqs = append(r.reqs, req) }

func (r *recorder) coords() []Coord {
	out := make([]Coord, len(r.reqs))
	for i, req := range r.reqs {
		out[i] = req.coord
	}
	return out
}

// find returns the last request for c.
func (r *recorder) find(c Coord) (loadRequest, bool) {
	for i := len(r.reqs) - 1; i >= 0; i-- {
		if r.reqs[i].coord == c {
			return r.reqs[i], true
		}
	}
	return loadRequest{}, false
}

type windowHarness struct {
	w     *window
	rec   *recorder
	scene *fakeScene
	vp    *countViewport
	met   *countMetrics
}

// newWindowHarness builds a window over unit tiles centered on (0,0).
func newWindowHarness(viewDistance float64, maxLoads int) *windowHarness {
	h := &windowHarness{
		rec:   &recorder{},
		scene: newFakeScene(),
		vp:    &countViewport{},
		met:   newCountMetrics(),
	}
	opt := withDefaults(Options{
		ViewDistance:       viewDistance,
		TileSize:           Vec2{X: 1, Z: 1},
		Position:           Vec3{X: 0.5, Z: 0.5},
		MaxConcurrentLoads: maxLoads,
		Scene:              h.scene,
		Viewport:           h.vp,
		Metrics:            h.met,
	})
	h.w = newWindow(opt, h.rec.dispatch)
	return h
}

// pumpAll steps the pump until it stops asking for more.
func (h *windowHarness) pumpAll() pumpState {
	for {
		if s := h.w.pump(); s != pumpArmed {
			return s
		}
	}
}

// moveTo sets the viewer position the way the manager does.
func (h *windowHarness) moveTo(x, z float64) {
	if h.w.setPosition(Vec3{X: x, Z: z}) {
		h.w.update()
		h.w.tr.commit()
	}
}

// succeed completes req with a fresh model.
func (h *windowHarness) succeed(req loadRequest) *fakeModel {
	m := &fakeModel{c: req.coord}
	h.w.complete(loadResult{coord: req.coord, gen: req.gen, model: m})
	return m
}

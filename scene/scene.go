// Package scene provides ready-made cache.Scene and cache.Viewport
// implementations: a registry of attached tile models and a redraw flag.
package scene

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/tilewindow/cache"
)

// EventKind tells whether a model joined or left the graph.
type EventKind uint8

const (
	Attached EventKind = iota
	Detached
)

func (k EventKind) String() string {
	if k == Attached {
		return "attached"
	}
	return "detached"
}

// Event describes one change of the graph.
type Event struct {
	Kind  EventKind
	Coord cache.Coord
	Model cache.Model
}

// Graph keeps the models currently attached, keyed by tile. It is safe for
// concurrent use: the manager writes from its event loop while renderers
// read.
type Graph struct {
	mu     sync.RWMutex
	models map[cache.Coord]cache.Model

	// onChange runs synchronously after each change, outside the lock. It
	// runs on the manager's event loop and must not call into the manager.
	onChange func(Event)
}

var _ cache.Scene = (*Graph)(nil)

// NewGraph returns an empty graph. onChange may be nil.
func NewGraph(onChange func(Event)) *Graph {
	return &Graph{models: make(map[cache.Coord]cache.Model), onChange: onChange}
}

// Attach implements cache.Scene.
func (g *Graph) Attach(c cache.Coord, m cache.Model) {
	g.mu.Lock()
	g.models[c] = m
	g.mu.Unlock()
	g.emit(Event{Kind: Attached, Coord: c, Model: m})
}

// Detach implements cache.Scene. A model that is not the one attached at c
// is ignored.
func (g *Graph) Detach(c cache.Coord, m cache.Model) {
	g.mu.Lock()
	cur, ok := g.models[c]
	if !ok || cur != m {
		g.mu.Unlock()
		return
	}
	delete(g.models, c)
	g.mu.Unlock()
	g.emit(Event{Kind: Detached, Coord: c, Model: m})
}

func (g *Graph) emit(e Event) {
	if g.onChange != nil {
		g.onChange(e)
	}
}

// Get returns the model attached at c.
func (g *Graph) Get(c cache.Coord) (cache.Model, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.models[c]
	return m, ok
}

// Len returns the number of attached models.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.models)
}

// Coords lists the attached tiles ordered by Z, then X.
func (g *Graph) Coords() []cache.Coord {
	g.mu.RLock()
	out := make([]cache.Coord, 0, len(g.models))
	for c := range g.models {
		out = append(out, c)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return out[i].X < out[j].X
	})
	return out
}

// Bytes sums the buffer sizes of attached models that report one.
func (g *Graph) Bytes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, m := range g.models {
		if s, ok := m.(interface{ Bytes() int }); ok {
			n += s.Bytes()
		}
	}
	return n
}

// Viewport is a redraw flag. MarkDirty never blocks; a renderer either
// polls TakeDirty each frame or waits on C.
type Viewport struct {
	dirty  atomic.Bool
	notify chan struct{}
}

var _ cache.Viewport = (*Viewport)(nil)

// NewViewport returns a clean viewport.
func NewViewport() *Viewport {
	return &Viewport{notify: make(chan struct{}, 1)}
}

// MarkDirty implements cache.Viewport.
func (v *Viewport) MarkDirty() {
	v.dirty.Store(true)
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// Dirty reports whether a redraw is pending.
func (v *Viewport) Dirty() bool { return v.dirty.Load() }

// TakeDirty clears the flag and reports whether it was set.
func (v *Viewport) TakeDirty() bool { return v.dirty.Swap(false) }

// C receives a value after MarkDirty. Several marks may collapse into one.
func (v *Viewport) C() <-chan struct{} { return v.notify }

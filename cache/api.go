package cache

import "context"

// Manager keeps the tiles around a moving viewer loaded.
// All methods are safe for concurrent use by multiple goroutines; they are
// applied in call order on the manager's own event loop and return once the
// change has been applied (eviction included). Loads complete asynchronously.
type Manager interface {
	// SetPosition moves the viewer. When the position falls into a different
	// center tile the window is updated: far tiles are evicted and the load
	// pump is restarted.
	SetPosition(pos Vec3)

	// SetViewDistance changes the world-space view distance. The per-axis
	// radii are recomputed and the window is updated right away.
	SetViewDistance(d float64)

	// Update evicts tiles outside the current window and restarts the load pump.
	Update()

	// Center returns the current center tile. After Close it keeps
	// returning the center the manager was closed at.
	Center() Coord

	// ViewRadii returns the view distance in tile units along X and Z, like
	// Center also after Close.
	ViewRadii() (vdx, vdz float64)

	// Len returns the number of cached tiles (loading and ready).
	Len() int

	// InFlight returns the number of loads awaiting completion.
	InFlight() int

	// Tiles returns a snapshot of the cached tiles in no particular order.
	Tiles() []TileInfo

	// Close disposes every tile and stops the manager. It waits for pending
	// loads to report so their results are released too. Other calls after
	// Close are no-ops; a second Close returns ErrClosed.
	Close() error
}

// Model is a loaded tile payload (geometry, material, ...).
// Dispose releases the underlying resource; the manager calls it exactly once
// for every model it receives.
type Model interface {
	Dispose()
}

// Loader produces the model for a tile. A nil model, typed or not, with a
// nil error counts as a failed load. It is called on its own goroutine,
// at most MaxConcurrentLoads times concurrently, and must eventually return.
// ctx is canceled when the manager closes or LoadTimeout expires.
type Loader interface {
	LoadTile(ctx context.Context, x, z int) (Model, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(ctx context.Context, x, z int) (Model, error)

// LoadTile implements Loader.
func (f LoaderFunc) LoadTile(ctx context.Context, x, z int) (Model, error) { return f(ctx, x, z) }

// Scene receives models when tiles become ready and loses them on disposal.
// Calls happen on the manager's event loop and must not call back into the
// Manager.
type Scene interface {
	Attach(c Coord, m Model)
	Detach(c Coord, m Model)
}

// Viewport is told that the set of visible tiles changed and a redraw is due.
// Like Scene, it is called on the event loop.
type Viewport interface {
	MarkDirty()
}

type noopScene struct{}

func (noopScene) Attach(Coord, Model) {}
func (noopScene) Detach(Coord, Model) {}

type noopViewport struct{}

func (noopViewport) MarkDirty() {}

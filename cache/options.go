package cache

import (
	"time"

	"github.com/IvanBrykalov/tilewindow/pkg/logger"
)

// DefaultMaxConcurrentLoads caps the loads awaiting completion when
// Options.MaxConcurrentLoads is not set.
const DefaultMaxConcurrentLoads = 8

// DisposeReason explains why a tile (or a freshly loaded model) was released.
type DisposeReason int

const (
	// DisposeEvicted: the tile left the view window.
	DisposeEvicted DisposeReason = iota
	// DisposeClosed: the manager was closed.
	DisposeClosed
	// DisposeStale: a load finished for a tile that is no longer wanted.
	DisposeStale
	// DisposeFailed: the loader returned an error.
	DisposeFailed
)

func (r DisposeReason) String() string {
	switch r {
	case DisposeEvicted:
		return "evicted"
	case DisposeClosed:
		return "closed"
	case DisposeStale:
		return "stale"
	case DisposeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metrics exposes manager-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Calls happen on the manager's event loop; keep them cheap.
type Metrics interface {
	LoadStarted()
	LoadFinished(ok bool, took time.Duration)
	Disposed(reason DisposeReason)
	Size(resident, inFlight int)
}

// Clock provides time; useful for deterministic tests.
type Clock interface{ Now() time.Time }

// Options configures a Manager. Zero values are safe where noted;
// defaults are applied in New():
//   - MaxConcurrentLoads <= 0 => DefaultMaxConcurrentLoads
//   - nil Scene, Viewport    => no-op
//   - nil Metrics            => NoopMetrics
//   - nil Logger             => logger.Nop()
type Options struct {
	// ViewDistance is the world-space distance kept loaded around the viewer.
	ViewDistance float64

	// TileSize is the world-space size of one tile per axis. Both axes must be > 0.
	TileSize Vec2

	// TileOffset shifts the grid origin in world space.
	TileOffset Vec2

	// Position is the initial viewer position. No tiles load until the first
	// Update or a position change.
	Position Vec3

	// Loader produces tile models. Required.
	Loader Loader

	// MaxConcurrentLoads caps the loads awaiting completion.
	MaxConcurrentLoads int

	// LoadTimeout bounds every LoadTile call (0 = no timeout). A timed out load
	// counts as failed and frees its slot.
	LoadTimeout time.Duration

	// Scene receives ready models and loses them on disposal.
	Scene Scene

	// Viewport is marked dirty whenever tiles are added or removed.
	Viewport Viewport

	// Observability
	Metrics Metrics
	Logger  logger.Logger

	// Clock allows overriding the time source for load latency (tests). Nil => time.Now().
	Clock Clock
}

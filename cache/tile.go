package cache

// State is the lifecycle state of a cached tile.
type State uint8

const (
	// StateLoading: a load was dispatched and has not reported yet.
	StateLoading State = iota
	// StateReady: the model is loaded and attached to the scene.
	StateReady
	// StateDisposed: the tile released its model and left the cache.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// TileInfo is one row of Manager.Tiles.
type TileInfo struct {
	Coord Coord
	State State
}

// tile is the cache entry for one grid cell. It is owned by the window and
// only touched on the manager's event loop.
type tile struct {
	coord Coord
	state State

	// gen identifies the load that created this entry. A result carrying a
	// different generation belongs to an older entry for the same cell.
	gen uint64

	// model is set only in StateReady and owned by the tile until dispose.
	model Model
}

// setModel installs m and attaches it to the scene.
func (t *tile) setModel(s Scene, m Model) {
	t.model = m
	t.state = StateReady
	s.Attach(t.coord, m)
}

// dispose detaches and releases the model (if any) and marks the tile
// disposed. Calling it again is a no-op.
func (t *tile) dispose(s Scene) {
	if t.state == StateDisposed {
		return
	}
	t.state = StateDisposed
	if t.model != nil {
		s.Detach(t.coord, t.model)
		t.model.Dispose()
		t.model = nil
	}
}

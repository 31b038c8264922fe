// Package synth generates procedural heightfield tiles. It stands in for a
// real tile server in benchmarks, examples and tests: output is a pure
// function of the seed and the tile coordinate, and latency and failures can
// be injected.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/internal/util"
	"github.com/IvanBrykalov/tilewindow/model"
)

// ErrInjected is returned for loads picked by Options.FailureRate.
var ErrInjected = errors.New("synth: injected failure")

// Options configures a Loader. Zero values get defaults in New.
type Options struct {
	Seed uint64

	// Resolution is the number of quads along one tile side (default 8).
	Resolution int
	// TileSize is the world-space size of a tile (default 32).
	TileSize float64
	// Amplitude is the height range in world units (default 16).
	Amplitude float64

	// Latency is added to every load; Jitter adds up to that much more,
	// derived from the coordinate and call count.
	Latency time.Duration
	Jitter  time.Duration

	// FailureRate is the probability in [0,1] that a load fails with ErrInjected.
	FailureRate float64
}

// Loader implements cache.Loader.
type Loader struct {
	opt   Options
	calls atomic.Uint64
}

var _ cache.Loader = (*Loader)(nil)

// New returns a Loader with defaults applied.
func New(opt Options) *Loader {
	if opt.Resolution <= 0 {
		opt.Resolution = 8
	}
	if !(opt.TileSize > 0) {
		opt.TileSize = 32
	}
	if opt.Amplitude == 0 {
		opt.Amplitude = 16
	}
	return &Loader{opt: opt}
}

// Calls returns the number of LoadTile calls so far.
func (l *Loader) Calls() uint64 { return l.calls.Load() }

// LoadTile waits for the configured latency, then builds the tile.
func (l *Loader) LoadTile(ctx context.Context, x, z int) (cache.Model, error) {
	n := l.calls.Add(1)
	roll := util.HashCoord(l.opt.Seed^n*0x9e3779b97f4a7c15, x, z)

	if d := l.delay(roll); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.opt.FailureRate > 0 && util.Unit(roll>>7|roll<<57) < l.opt.FailureRate {
		return nil, fmt.Errorf("tile %d,%d: %w", x, z, ErrInjected)
	}
	return l.Geometry(x, z), nil
}

func (l *Loader) delay(roll uint64) time.Duration {
	d := l.opt.Latency
	if l.opt.Jitter > 0 {
		d += time.Duration(util.Unit(roll) * float64(l.opt.Jitter))
	}
	return d
}

// Geometry builds the heightfield mesh of tile (x, z). Border vertices are
// shared with the neighbours, so adjacent tiles meet without seams.
func (l *Loader) Geometry(x, z int) *model.Geometry {
	res := l.opt.Resolution
	step := l.opt.TileSize / float64(res)
	ox, oz := float64(x)*l.opt.TileSize, float64(z)*l.opt.TileSize

	// heights on a (res+1)^2 vertex grid in global vertex indices
	h := make([]float32, (res+1)*(res+1))
	for j := 0; j <= res; j++ {
		for i := 0; i <= res; i++ {
			h[j*(res+1)+i] = l.height(x*res+i, z*res+j)
		}
	}
	at := func(i, j int) float32 { return h[j*(res+1)+i] }

	quads := res * res
	g := &model.Geometry{
		Positions: make([]float32, 0, quads*6*3),
		Normals:   make([]float32, 0, quads*6*3),
		Colors:    make([]float32, 0, quads*6*3),
		UVs:       make([]float32, 0, quads*6*2),
	}
	vertex := func(i, j int) {
		y := at(i, j)
		g.Positions = append(g.Positions, float32(ox+float64(i)*step), y, float32(oz+float64(j)*step))

		// central differences, clamped at the tile border
		dx := at(min(i+1, res), j) - at(max(i-1, 0), j)
		dz := at(i, min(j+1, res)) - at(i, max(j-1, 0))
		nx, ny, nz := -float64(dx), 2*step, -float64(dz)
		inv := 1 / math.Sqrt(nx*nx+ny*ny+nz*nz)
		g.Normals = append(g.Normals, float32(nx*inv), float32(ny*inv), float32(nz*inv))

		c := colorFor(float64(y) / l.opt.Amplitude)
		g.Colors = append(g.Colors, c[0], c[1], c[2])
		g.UVs = append(g.UVs, float32(i)/float32(res), float32(j)/float32(res))
	}
	for j := 0; j < res; j++ {
		for i := 0; i < res; i++ {
			vertex(i, j)
			vertex(i, j+1)
			vertex(i+1, j)
			vertex(i+1, j)
			vertex(i, j+1)
			vertex(i+1, j+1)
		}
	}
	g.Groups = []model.Group{{Start: 0, Count: g.Vertices()}}
	return g
}

// height sums two octaves of value noise at a global vertex index.
func (l *Loader) height(gx, gz int) float32 {
	res := l.opt.Resolution
	v := 0.7*l.noise(gx, gz, 4*res, 0) + 0.3*l.noise(gx, gz, res, 1)
	return float32(v * l.opt.Amplitude)
}

// noise interpolates lattice values spaced cell vertices apart.
func (l *Loader) noise(gx, gz, cell int, octave uint64) float64 {
	cx, cz := util.FloorDiv(gx, cell), util.FloorDiv(gz, cell)
	fx := smooth(float64(gx-cx*cell) / float64(cell))
	fz := smooth(float64(gz-cz*cell) / float64(cell))

	seed := l.opt.Seed + octave*0x632be59bd9b4e019
	v00 := util.Unit(util.HashCoord(seed, cx, cz))
	v10 := util.Unit(util.HashCoord(seed, cx+1, cz))
	v01 := util.Unit(util.HashCoord(seed, cx, cz+1))
	v11 := util.Unit(util.HashCoord(seed, cx+1, cz+1))

	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return top + (bot-top)*fz
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

// colorFor shades low ground green and high ground grey-white.
func colorFor(t float64) [3]float32 {
	t = max(0, min(1, t))
	switch {
	case t < 0.3:
		return [3]float32{0.25, 0.45 + float32(t), 0.2}
	case t < 0.7:
		return [3]float32{0.45, 0.4, 0.3}
	default:
		v := float32(0.6 + 0.4*t)
		return [3]float32{v, v, v}
	}
}

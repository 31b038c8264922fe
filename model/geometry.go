// Package model holds tile payloads: triangle geometry decoded from the
// three.js BufferGeometry JSON format that map renderers serve per tile.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/IvanBrykalov/tilewindow/cache"
)

// Group is a draw range using one material.
type Group struct {
	Start         int `json:"start"`
	Count         int `json:"count"`
	MaterialIndex int `json:"materialIndex"`
}

// Geometry is an indexed-free triangle soup with optional per-vertex
// attributes. It implements cache.Model.
type Geometry struct {
	Positions []float32 // xyz per vertex
	Normals   []float32 // xyz per vertex, may be empty
	Colors    []float32 // rgb per vertex, may be empty
	UVs       []float32 // uv per vertex, may be empty
	Groups    []Group

	released atomic.Bool
}

var _ cache.Model = (*Geometry)(nil)

// Vertices returns the vertex count.
func (g *Geometry) Vertices() int { return len(g.Positions) / 3 }

// Bytes is the memory held by the attribute buffers.
func (g *Geometry) Bytes() int {
	return 4 * (len(g.Positions) + len(g.Normals) + len(g.Colors) + len(g.UVs))
}

// Dispose drops the buffers. It is safe to call more than once.
func (g *Geometry) Dispose() {
	if g.released.Swap(true) {
		return
	}
	g.Positions, g.Normals, g.Colors, g.UVs, g.Groups = nil, nil, nil, nil, nil
}

// Released reports whether Dispose was called.
func (g *Geometry) Released() bool { return g.released.Load() }

// ErrInvalidGeometry wraps every structural problem found by Decode.
var ErrInvalidGeometry = errors.New("model: invalid geometry")

type attribute struct {
	ItemSize int       `json:"itemSize"`
	Type     string    `json:"type"`
	Array    []float32 `json:"array"`
}

type bufferGeometry struct {
	Type string `json:"type"`
	Data struct {
		Attributes map[string]attribute `json:"attributes"`
		Groups     []Group              `json:"groups"`
	} `json:"data"`
}

// Decode reads one BufferGeometry document. A position attribute is
// required; normal, color and uv must match its vertex count when present.
func Decode(r io.Reader) (*Geometry, error) {
	var doc bufferGeometry
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("model: decode: %w", err)
	}
	if doc.Type != "" && doc.Type != "BufferGeometry" {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidGeometry, doc.Type)
	}

	attrs := doc.Data.Attributes
	pos, ok := attrs["position"]
	if !ok {
		return nil, fmt.Errorf("%w: missing position attribute", ErrInvalidGeometry)
	}
	if err := checkAttr("position", pos, 3, -1); err != nil {
		return nil, err
	}
	n := len(pos.Array) / 3

	g := &Geometry{Positions: pos.Array, Groups: doc.Data.Groups}
	for name, dst := range map[string]*[]float32{"normal": &g.Normals, "color": &g.Colors, "uv": &g.UVs} {
		a, ok := attrs[name]
		if !ok {
			continue
		}
		size := 3
		if name == "uv" {
			size = 2
		}
		if err := checkAttr(name, a, size, n); err != nil {
			return nil, err
		}
		*dst = a.Array
	}

	for i, gr := range g.Groups {
		if gr.Start < 0 || gr.Count < 0 || gr.Start+gr.Count > n {
			return nil, fmt.Errorf("%w: group %d out of range [0,%d)", ErrInvalidGeometry, i, n)
		}
	}
	return g, nil
}

func checkAttr(name string, a attribute, size, vertices int) error {
	if a.ItemSize != size {
		return fmt.Errorf("%w: %s itemSize %d, want %d", ErrInvalidGeometry, name, a.ItemSize, size)
	}
	if len(a.Array)%size != 0 {
		return fmt.Errorf("%w: %s length %d not a multiple of %d", ErrInvalidGeometry, name, len(a.Array), size)
	}
	if vertices >= 0 && len(a.Array)/size != vertices {
		return fmt.Errorf("%w: %s has %d vertices, position has %d", ErrInvalidGeometry, name, len(a.Array)/size, vertices)
	}
	return nil
}

// Encode writes g in the format Decode reads.
func Encode(w io.Writer, g *Geometry) error {
	var doc bufferGeometry
	doc.Type = "BufferGeometry"
	doc.Data.Attributes = map[string]attribute{
		"position": {ItemSize: 3, Type: "Float32Array", Array: g.Positions},
	}
	if len(g.Normals) > 0 {
		doc.Data.Attributes["normal"] = attribute{ItemSize: 3, Type: "Float32Array", Array: g.Normals}
	}
	if len(g.Colors) > 0 {
		doc.Data.Attributes["color"] = attribute{ItemSize: 3, Type: "Float32Array", Array: g.Colors}
	}
	if len(g.UVs) > 0 {
		doc.Data.Attributes["uv"] = attribute{ItemSize: 2, Type: "Float32Array", Array: g.UVs}
	}
	doc.Data.Groups = g.Groups
	return json.NewEncoder(w).Encode(doc)
}

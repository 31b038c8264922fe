package model

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const triangle = `{
  "type": "BufferGeometry",
  "data": {
    "attributes": {
      "position": {"itemSize": 3, "type": "Float32Array", "array": [0,0,0, 1,0,0, 0,0,1]},
      "normal":   {"itemSize": 3, "type": "Float32Array", "array": [0,1,0, 0,1,0, 0,1,0]},
      "uv":       {"itemSize": 2, "type": "Float32Array", "array": [0,0, 1,0, 0,1]}
    },
    "groups": [{"start": 0, "count": 3, "materialIndex": 2}]
  }
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	g, err := Decode(strings.NewReader(triangle))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if g.Vertices() != 3 {
		t.Fatalf("want 3 vertices, got %d", g.Vertices())
	}
	if len(g.Normals) != 9 || len(g.UVs) != 6 || len(g.Colors) != 0 {
		t.Fatalf("attribute lengths: normals=%d uvs=%d colors=%d", len(g.Normals), len(g.UVs), len(g.Colors))
	}
	if len(g.Groups) != 1 || g.Groups[0].MaterialIndex != 2 {
		t.Fatalf("groups: %+v", g.Groups)
	}
	if g.Bytes() != 4*(9+9+6) {
		t.Fatalf("Bytes want %d, got %d", 4*24, g.Bytes())
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no position":   `{"data":{"attributes":{}}}`,
		"bad item size": `{"data":{"attributes":{"position":{"itemSize":2,"array":[0,0]}}}}`,
		"ragged":        `{"data":{"attributes":{"position":{"itemSize":3,"array":[0,0,0,1]}}}}`,
		"normal count":  `{"data":{"attributes":{"position":{"itemSize":3,"array":[0,0,0]},"normal":{"itemSize":3,"array":[0,1,0,0,1,0]}}}}`,
		"group range":   `{"data":{"attributes":{"position":{"itemSize":3,"array":[0,0,0]}},"groups":[{"start":0,"count":4}]}}`,
		"wrong type":    `{"type":"Mesh","data":{"attributes":{"position":{"itemSize":3,"array":[0,0,0]}}}}`,
	}
	for name, doc := range cases {
		if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, ErrInvalidGeometry) {
			t.Fatalf("%s: want ErrInvalidGeometry, got %v", name, err)
		}
	}
	if _, err := Decode(strings.NewReader("{")); err == nil {
		t.Fatal("truncated JSON must fail")
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	src := &Geometry{
		Positions: []float32{0, 0, 0, 1, 0, 0, 0, 0, 1},
		Colors:    []float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, src); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Vertices() != 3 || len(got.Colors) != 9 {
		t.Fatalf("encoded geometry lost data: %+v", got)
	}
}

func TestDispose(t *testing.T) {
	t.Parallel()

	g, err := Decode(strings.NewReader(triangle))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	g.Dispose()
	g.Dispose()
	if !g.Released() || g.Positions != nil || g.Bytes() != 0 {
		t.Fatal("Dispose must drop buffers and mark the geometry released")
	}
}

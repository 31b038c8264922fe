package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClient(t *testing.T) {
	t.Parallel()

	msg, err := DecodeClient([]byte(`{"type":"POSITION","x":12.5,"y":64,"z":-3}`))
	if err != nil {
		t.Fatalf("POSITION: %v", err)
	}
	pos, ok := msg.(*PositionMsg)
	if !ok || pos.X != 12.5 || pos.Y != 64 || pos.Z != -3 {
		t.Fatalf("POSITION decoded as %#v", msg)
	}

	msg, err = DecodeClient([]byte(`{"type":"VIEW_DISTANCE","distance":250}`))
	if err != nil {
		t.Fatalf("VIEW_DISTANCE: %v", err)
	}
	if vd, ok := msg.(*ViewDistanceMsg); !ok || vd.Distance != 250 {
		t.Fatalf("VIEW_DISTANCE decoded as %#v", msg)
	}
}

func TestDecodeClient_Rejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`not json`,
		`{"type":"POSITION","x":1}`,
		`{"type":"POSITION","x":"1","z":2}`,
		`{"type":"POSITION","x":1,"z":2,"extra":true}`,
		`{"type":"VIEW_DISTANCE","distance":-1}`,
		`{"type":"TELEPORT","x":1,"z":2}`,
		`[]`,
	} {
		if _, err := DecodeClient([]byte(in)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s: want ErrInvalidMessage, got %v", in, err)
		}
	}
}

func TestServerMessagesShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(TileReadyMsg{Type: TypeTileReady, X: -1, Z: 4, Vertices: 384})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"TILE_READY","x":-1,"z":4,"vertices":384}` {
		t.Fatalf("unexpected TILE_READY encoding: %s", b)
	}
	if e := NewError(CodeBadRequest, "nope"); e.Type != TypeError {
		t.Fatalf("NewError type: %q", e.Type)
	}
}

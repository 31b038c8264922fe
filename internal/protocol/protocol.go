// Package protocol defines the JSON messages exchanged with a viewer over a
// websocket. Incoming messages are validated against an embedded schema
// before they are decoded.
package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = "1.0"

// Message types.
const (
	// viewer -> server
	TypePosition     = "POSITION"
	TypeViewDistance = "VIEW_DISTANCE"

	// server -> viewer
	TypeHello       = "HELLO"
	TypeTileReady   = "TILE_READY"
	TypeTileRemoved = "TILE_REMOVED"
	TypeError       = "ERROR"
)

//go:embed client.schema.json
var clientSchemaJSON string

var clientSchema = jsonschema.MustCompileString("client.schema.json", clientSchemaJSON)

// ErrInvalidMessage wraps every decode or validation failure.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// BaseMessage lets us route messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

// POSITION (viewer -> server)
type PositionMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y,omitempty"`
	Z    float64 `json:"z"`
}

// VIEW_DISTANCE (viewer -> server)
type ViewDistanceMsg struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
}

// HELLO (server -> viewer), sent once after the upgrade.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	Map             string     `json:"map"`
	TileSize        [2]float64 `json:"tile_size"`
	TileOffset      [2]float64 `json:"tile_offset"`
	ViewDistance    float64    `json:"view_distance"`
	MaxViewDistance float64    `json:"max_view_distance"`
}

// TILE_READY (server -> viewer): the tile at (X, Z) is loaded.
type TileReadyMsg struct {
	Type     string `json:"type"`
	X        int    `json:"x"`
	Z        int    `json:"z"`
	Vertices int    `json:"vertices,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
}

// TILE_REMOVED (server -> viewer): the tile at (X, Z) was released.
type TileRemovedMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Z    int    `json:"z"`
}

// ERROR (server -> viewer)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeBadRequest = "E_BAD_REQUEST"
	CodeInternal   = "E_INTERNAL"
)

// DecodeClient validates b and returns a *PositionMsg or *ViewDistanceMsg.
func DecodeClient(b []byte) (any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := clientSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var base BaseMessage
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	var msg any
	switch base.Type {
	case TypePosition:
		msg = &PositionMsg{}
	case TypeViewDistance:
		msg = &ViewDistanceMsg{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, base.Type)
	}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// NewError builds an ERROR message.
func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}

// Package ws serves viewers over websockets. Every connection owns one
// cache.Manager; all managers share the process-wide tile loader.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/internal/protocol"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/IvanBrykalov/tilewindow/scene"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	outBuffer = 4096
)

// Settings describe the map every session views.
type Settings struct {
	Map                string
	TileSize           cache.Vec2
	TileOffset         cache.Vec2
	ViewDistance       float64
	MaxViewDistance    float64
	MaxConcurrentLoads int
	LoadTimeout        time.Duration
	Start              cache.Vec3
}

// Server upgrades HTTP requests to viewer sessions.
type Server struct {
	loader     cache.Loader
	settings   Settings
	newMetrics func() cache.Metrics
	log        logger.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	sessions atomic.Int64
	wg       sync.WaitGroup
}

// NewServer returns a Server. newMetrics is called once per session (nil =>
// no metrics), so every session's manager can report its own sizes.
func NewServer(loader cache.Loader, settings Settings, newMetrics func() cache.Metrics, l logger.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	return &Server{
		loader:     loader,
		settings:   settings,
		newMetrics: newMetrics,
		log:        l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions returns the number of connected viewers.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

// Wait blocks until every session has ended and closed its manager, or ctx
// is done. Call it once the HTTP server stopped accepting connections;
// sessions end on their own when their request context is canceled.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler serves one viewer session per request.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		s.wg.Add(1)
		defer s.wg.Done()
		s.sessions.Add(1)
		defer s.sessions.Add(-1)

		sess := &session{
			id:   fmt.Sprintf("V%d", s.nextID.Add(1)),
			srv:  s,
			conn: conn,
			out:  make(chan []byte, outBuffer),
			kick: make(chan struct{}),
		}
		sess.run(r.Context())
	}
}

type session struct {
	id   string
	srv  *Server
	conn *websocket.Conn

	out      chan []byte
	kick     chan struct{} // closed when out overflowed
	kickOnce sync.Once
}

func (ss *session) run(parent context.Context) {
	s := ss.srv
	log := s.log
	log.Info("viewer connected", "session", ss.id)

	graph := scene.NewGraph(ss.onSceneChange)
	var metrics cache.Metrics
	if s.newMetrics != nil {
		metrics = s.newMetrics()
	}
	m, err := cache.New(cache.Options{
		ViewDistance:       s.settings.ViewDistance,
		TileSize:           s.settings.TileSize,
		TileOffset:         s.settings.TileOffset,
		Position:           s.settings.Start,
		Loader:             s.loader,
		MaxConcurrentLoads: s.settings.MaxConcurrentLoads,
		LoadTimeout:        s.settings.LoadTimeout,
		Scene:              graph,
		Metrics:            metrics,
		Logger:             log,
	})
	if err != nil {
		log.Error("tile manager init failed", "session", ss.id, "error", err)
		ss.closeWith(websocket.CloseInternalServerErr, "init failed")
		return
	}

	ss.send(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		SessionID:       ss.id,
		Map:             s.settings.Map,
		TileSize:        [2]float64{s.settings.TileSize.X, s.settings.TileSize.Z},
		TileOffset:      [2]float64{s.settings.TileOffset.X, s.settings.TileOffset.Z},
		ViewDistance:    s.settings.ViewDistance,
		MaxViewDistance: s.settings.MaxViewDistance,
	})
	m.Update()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Unblock readLoop when the server shuts down.
	stop := context.AfterFunc(parent, func() {
		ss.closeWith(websocket.CloseGoingAway, "server shutting down")
		_ = ss.conn.Close()
	})
	defer stop()

	writeErr := make(chan error, 1)
	go func() { writeErr <- ss.writeLoop(ctx) }()

	ss.readLoop(m)

	cancel()
	_ = m.Close()
	ss.closeWith(websocket.CloseNormalClosure, "bye")

	// Best-effort wait for the writer to stop so it doesn't outlive conn.
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	log.Info("viewer disconnected", "session", ss.id)
}

// readLoop applies viewer messages until the connection fails.
func (ss *session) readLoop(m cache.Manager) {
	maxDistance := ss.srv.settings.MaxViewDistance
	for {
		_ = ss.conn.SetReadDeadline(time.Now().Add(readWait))
		_, b, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeClient(b)
		if err != nil {
			ss.send(protocol.NewError(protocol.CodeBadRequest, err.Error()))
			continue
		}
		switch msg := msg.(type) {
		case *protocol.PositionMsg:
			m.SetPosition(cache.Vec3{X: msg.X, Y: msg.Y, Z: msg.Z})
		case *protocol.ViewDistanceMsg:
			d := msg.Distance
			if maxDistance > 0 && d > maxDistance {
				d = maxDistance
			}
			m.SetViewDistance(d)
		}
	}
}

func (ss *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ss.kick:
			ss.srv.log.Warn("viewer too slow, dropping session", "session", ss.id)
			ss.closeWith(websocket.CloseTryAgainLater, "too slow")
			_ = ss.conn.Close()
			return nil
		case b := <-ss.out:
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ss.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = ss.conn.Close()
				return err
			}
		}
	}
}

// onSceneChange runs on the manager's event loop, so it never blocks.
func (ss *session) onSceneChange(e scene.Event) {
	switch e.Kind {
	case scene.Attached:
		msg := protocol.TileReadyMsg{Type: protocol.TypeTileReady, X: e.Coord.X, Z: e.Coord.Z}
		if g, ok := e.Model.(interface {
			Vertices() int
			Bytes() int
		}); ok {
			msg.Vertices, msg.Bytes = g.Vertices(), g.Bytes()
		}
		ss.send(msg)
	case scene.Detached:
		ss.send(protocol.TileRemovedMsg{Type: protocol.TypeTileRemoved, X: e.Coord.X, Z: e.Coord.Z})
	}
}

// send queues v for the writer without blocking; a full queue ends the session.
func (ss *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ss.srv.log.Error("encode message failed", "session", ss.id, "error", err)
		return
	}
	select {
	case ss.out <- b:
	default:
		ss.kickOnce.Do(func() { close(ss.kick) })
	}
}

func (ss *session) closeWith(code int, text string) {
	_ = ss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

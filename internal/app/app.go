// Package app wires configuration, tile sources and transports into the
// tilewindow service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/IvanBrykalov/tilewindow/cache"
	v1 "github.com/IvanBrykalov/tilewindow/internal/transport/http/v1"
	"github.com/IvanBrykalov/tilewindow/internal/transport/http/v1/handler"
	"github.com/IvanBrykalov/tilewindow/internal/transport/ws"
	"github.com/IvanBrykalov/tilewindow/loader/archive"
	"github.com/IvanBrykalov/tilewindow/loader/httploader"
	"github.com/IvanBrykalov/tilewindow/loader/synth"
	"github.com/IvanBrykalov/tilewindow/metrics/prom"
	"github.com/IvanBrykalov/tilewindow/pkg/config"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/IvanBrykalov/tilewindow/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Version is stamped into traces.
var Version = "dev"

// Run serves viewers until ctx is canceled, then shuts down gracefully.
// ready, when non-nil, receives the bound listen address once the server
// accepts connections.
func Run(ctx context.Context, cfg *config.Config, l logger.Logger, ready chan<- string) error {
	settings, err := config.LoadMapSettings(cfg.Tiles.MapSettings)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			l.Error("failed to shutdown telemetry", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	src, err := openSource(ctx, cfg.Tiles, &settings, reg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.close(); err != nil {
			l.Error("failed to close tile source", "error", err)
		}
	}()
	l.Info("tile source ready", "source", cfg.Tiles.Source, "map", settings.Name,
		"tile_size_x", settings.TileSize.X, "tile_size_z", settings.TileSize.Z)

	wsServer := ws.NewServer(src.loader, ws.Settings{
		Map:                settings.Name,
		TileSize:           cache.Vec2{X: settings.TileSize.X, Z: settings.TileSize.Z},
		TileOffset:         cache.Vec2{X: settings.TileOffset.X, Z: settings.TileOffset.Z},
		ViewDistance:       settings.ViewDistance,
		MaxViewDistance:    settings.MaxViewDistance,
		MaxConcurrentLoads: settings.MaxConcurrentLoads,
		LoadTimeout:        settings.LoadTimeout,
		Start:              cache.Vec3{X: settings.StartPosition.X, Y: settings.StartPosition.Y, Z: settings.StartPosition.Z},
	}, newSessionMetrics(prom.New(reg, "tilewindow", "tiles", nil)), l)

	gin.SetMode(gin.ReleaseMode)
	router := v1.NewRouter(handler.NewHandler(src.loader, wsServer), wsServer.Handler(), reg, l, cfg.Telemetry.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Server.ReadTimeout,
		WriteTimeout: cfg.HTTP.Server.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return gctx },
	}
	ln, err := net.Listen("tcp", ":"+cfg.HTTP.Server.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g.Go(func() error {
		l.Info("starting http server", "addr", ln.Addr().String())
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down server...")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()

	// Hijacked websocket connections outlive Shutdown; their managers must
	// stop loading before the tile source closes.
	wctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Server.ShutdownTimeout)
	defer cancel()
	if werr := wsServer.Wait(wctx); werr != nil {
		l.Warn("viewer sessions still running at shutdown", "sessions", wsServer.Sessions(), "error", werr)
	}

	l.Info("server stopped")
	return err
}

// newSessionMetrics gives every session its own scope of the shared adapter.
func newSessionMetrics(a *prom.Adapter) func() cache.Metrics {
	return func() cache.Metrics { return a.Scope() }
}

type source struct {
	loader cache.Loader
	close  func() error
}

// openSource builds the configured tile loader. An archive that records its
// tile size overrides the settings.
func openSource(ctx context.Context, cfg config.Tiles, settings *config.MapSettings, reg prometheus.Registerer, l logger.Logger) (source, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case "synth":
		return source{
			loader: synth.New(synth.Options{TileSize: settings.TileSize.X}),
			close:  noop,
		}, nil

	case "http":
		hl, err := httploader.New(httploader.Options{
			BaseURL:           cfg.BaseURL,
			UserAgent:         cfg.UserAgent,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Registerer:        reg,
			Logger:            l,
		})
		if err != nil {
			return source{}, err
		}
		return source{loader: hl, close: noop}, nil

	case "archive":
		a, err := archive.Open(ctx, cfg.ArchivePath, l)
		if err != nil {
			return source{}, err
		}
		size, ok, err := a.TileSize(ctx)
		if err != nil {
			_ = a.Close()
			return source{}, err
		}
		if ok {
			settings.TileSize = config.Vec2{X: size, Z: size}
		}
		return source{loader: a, close: a.Close}, nil
	}
	return source{}, fmt.Errorf("unknown tile source %q", cfg.Source)
}

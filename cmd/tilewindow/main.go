// Command tilewindow serves tile windows to viewers over websockets.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/IvanBrykalov/tilewindow/internal/app"
	"github.com/IvanBrykalov/tilewindow/pkg/config"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l := logger.NewZapLogger(cfg.Logger.Level)
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, l, nil); err != nil {
		l.Error("tilewindow exited", "error", err)
		os.Exit(1)
	}
}

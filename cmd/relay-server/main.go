package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chesstrainer/internal/config"
	"chesstrainer/internal/obslog"
	"chesstrainer/internal/relay"
	"chesstrainer/internal/room"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: cfg.Log.Console,
		File:    cfg.Log.File,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	store := room.NewStore()
	handler := relay.NewHandler(store)
	srv := relay.NewServer(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			obslog.L().Fatal("relay_serve", zap.Error(err))
		}
	case sig := <-sigCh:
		obslog.L().Info("relay_shutdown", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			obslog.L().Warn("relay_shutdown_error", zap.Error(err))
		}
	}
}

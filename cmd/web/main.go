package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/cmd/web/internal/web"
	"thirdcoast.systems/mediaportal/internal/application"
	"thirdcoast.systems/mediaportal/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	svc, err := application.NewServices(ctx, conf)
	if err != nil {
		slog.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	uploadLimit, err := conf.UploadLimitBytes()
	if err != nil {
		slog.Error("invalid upload limit", "error", err)
		os.Exit(1)
	}

	reg := batches.NewRegistry(func(logger *slog.Logger) (batches.Batch, error) {
		return svc.NewOrchestrator(logger)
	}, conf.BatchIdleTimeout)
	go reg.Run(ctx, time.Minute)

	e, err := web.NewWebserver(web.Deps{
		Sessions:         auth.NewSessionManager(conf.SessionSecret),
		Batches:          reg,
		Store:            svc.Store,
		Uploads:          svc.Blobs,
		UploadKey:        svc.UploadKey,
		Publisher:        svc.Gateway,
		Presets:          svc.Presets,
		DefaultProcessor: conf.DefaultProcessor,
		UploadLimit:      strconv.FormatInt(uploadLimit, 10) + "B",
	})
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

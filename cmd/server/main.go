package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekcast/internal/api"
	"weekcast/internal/config"
	"weekcast/internal/fetcher"
	"weekcast/internal/fmi"
	"weekcast/internal/store"
	"weekcast/internal/timezone"
	"weekcast/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	tzService, err := timezone.NewService()
	if err != nil {
		slog.Error("failed to init timezone service", "err", err)
		os.Exit(1)
	}
	tz, err := timezone.Resolve(tzService, cfg.Timezone, cfg.Latitude, cfg.Longitude)
	if err != nil {
		slog.Error("failed to resolve timezone", "err", err)
		os.Exit(1)
	}

	// The loop outlives the signal context so in-flight writes can finish.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := weather.NewLoop(loopCtx)
	manager := weather.NewDailyManager(loop,
		weather.Context{
			Location: weather.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
			Timezone: tz,
		},
		db,
		fmi.NewClient(cfg.FMIBaseURL),
		weather.WithRefreshInterval(cfg.RefreshInterval),
		weather.WithLogger(slog.Default()),
	)
	go loop.Run()

	f := fetcher.New(manager, cfg.RefreshCheckInterval)
	if err := f.Start(); err != nil {
		slog.Error("failed to start refresh checker", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	api.NewHandler(manager).RegisterRoutes(mux)

	var handler http.Handler = mux
	if len(cfg.ClientSecrets) > 0 {
		handler = api.NewRequestSignatureMiddleware(cfg.ClientSecrets, cfg.SignatureMaxAge)(mux)
	} else {
		slog.Warn("CLIENT_SECRETS not set, state-changing routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "lat", cfg.Latitude, "lon", cfg.Longitude, "timezone", tz.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	f.Stop()
	if err := loop.Settle(shutdownCtx); err != nil {
		slog.Warn("weather loop did not settle", "err", err)
	}
	stopLoop()
	slog.Info("server stopped")
}

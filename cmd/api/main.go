package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pixvid/internal/adapter/repo"
	"pixvid/internal/http/handlers"
	httpapi "pixvid/internal/http/httpapi"
	"pixvid/internal/infra"
	"pixvid/internal/infra/geoip"
	"pixvid/internal/middleware"
	"pixvid/internal/monitor"
	"pixvid/internal/notify"
	"pixvid/internal/render"
	"pixvid/internal/scheduler"
	"pixvid/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	users := repo.NewUserRepository(runner)
	jobs := repo.NewJobRepository(runner)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable, pricing falls back to headers")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	var gate scheduler.DispatchGate
	if cfg.LoadGateEnabled {
		sysmon := monitor.NewSystemMonitor(cfg.LoadSampleEvery, logger)
		go sysmon.Run(ctx)
		gate = sysmon
	}

	pipeline := render.NewPipeline(store, logger, render.WithPaceUnit(cfg.RenderPaceUnit))
	engine := scheduler.New(scheduler.Config{
		MaxRetries:   cfg.MaxRetries,
		TickInterval: cfg.TickInterval,
	}, pipeline, users, jobs, gate, logger)

	if err := engine.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to restore unfinished jobs")
	}
	go engine.Run(ctx)

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, logger)
	}
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()
	go notify.Pump(ctx, events, notifier)

	app := &handlers.App{
		Engine:    engine,
		Users:     users,
		Jobs:      jobs,
		Store:     store,
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
		PageLimit: cfg.HistoryPageLimit,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedCORSOrigin,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Interrupted jobs go back to queued for the next boot.
	if err := engine.Close(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown incomplete")
	}
	cancel()
	logger.Info().Msg("server stopped")
}

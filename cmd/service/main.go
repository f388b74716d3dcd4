package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-forecast-display/internal/app"
	"github.com/kjstillabower/weather-forecast-display/internal/cache"
	"github.com/kjstillabower/weather-forecast-display/internal/config"
	httphandler "github.com/kjstillabower/weather-forecast-display/internal/http"
	"github.com/kjstillabower/weather-forecast-display/internal/lifecycle"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	lifecycle.MarkStarted(time.Now())

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}

	recovery := traffic.NewRecovery(traffic.Default(), stack.Client.ValidateAPIKey,
		cfg.DegradedRetryInitial, cfg.DegradedRetryMax,
		func() { logger.Error("upstream recovery exhausted; staying degraded") },
		logger)
	go recovery.Listen(ctx)

	healthConfig := &httphandler.HealthConfig{
		Thresholds: traffic.Thresholds{
			OverloadWindow:     cfg.OverloadWindow,
			OverloadRequests:   traffic.OverloadRequestsFor(cfg.RateLimitRPS, cfg.OverloadThresholdPct, cfg.OverloadWindow),
			IdleWindow:         cfg.IdleWindow,
			IdleRequestsPerMin: cfg.IdleThresholdReqPerMin,
			MinimumLifespan:    cfg.MinimumLifespan,
			DegradedWindow:     cfg.DegradedWindow,
			DegradedErrorPct:   cfg.DegradedErrorPct,
		},
		CachePing: stack.CachePing(),
		Version:   version,
	}
	handler := httphandler.NewHandler(stack.Service, healthConfig, recovery, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	warmer := cache.NewWarmer(stack.Service, stack.Service.TrackedLocations, 30*time.Second, logger)
	if cfg.WarmInterval > 0 {
		if err := warmer.Start(ctx, cfg.WarmInterval); err != nil {
			logger.Error("cache warming not started", zap.Error(err))
		} else {
			logger.Info("cache warming scheduled", zap.Duration("interval", cfg.WarmInterval), zap.Int("locations", len(cfg.WarmLocations)))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReadyDelay):
		}
		lifecycle.SetReady(true)
		logger.Info("service ready")
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	warmer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := stack.Close(); err != nil {
		logger.Error("close resources", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// Package app wires the forecast stack from configuration for the entrypoints.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/cache"
	"github.com/kjstillabower/weather-forecast-display/internal/circuitbreaker"
	"github.com/kjstillabower/weather-forecast-display/internal/client"
	"github.com/kjstillabower/weather-forecast-display/internal/config"
	"github.com/kjstillabower/weather-forecast-display/internal/location"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/prefs"
	"github.com/kjstillabower/weather-forecast-display/internal/publish"
	"github.com/kjstillabower/weather-forecast-display/internal/service"
)

const breakerComponent = "weather_api"

// Options adjusts wiring per entrypoint.
type Options struct {
	// DisablePublish skips the MQTT publisher even when configured.
	DisablePublish bool
}

// App holds the wired collaborators.
type App struct {
	Config    *config.Config
	Client    *client.OpenWeatherClient
	Breaker   *circuitbreaker.CircuitBreaker
	Cache     cache.Cache
	Prefs     prefs.Store
	Publisher *publish.Publisher
	Service   *service.ForecastService

	closers []func() error
	logger  *zap.Logger
}

// New wires the stack. The API key comes from config, falling back to the key
// saved in preferences. A missing key is not an error.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}

	store, closeStore, err := prefs.Open(cfg.PrefsBackend, cfg.PrefsPath)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	a.Prefs = store
	a.closers = append(a.closers, closeStore)
	logger.Info("preferences backend", zap.String("backend", cfg.PrefsBackend), zap.String("path", cfg.PrefsPath))

	apiKey := cfg.WeatherAPIKey
	if apiKey == "" {
		p, err := store.Load(ctx)
		if err != nil {
			logger.Warn("load saved API key failed", zap.Error(err))
		} else {
			apiKey = p.APIKey
		}
	}
	if apiKey == "" {
		logger.Warn("no API key configured; set one via PUT /settings/api-key or forecastctl settings api-key")
	}

	if cfg.CircuitBreakerEnabled {
		a.Breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        breakerComponent,
			IsIgnored:        client.IsBreakerNeutral,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
				logger.Warn("circuit breaker state change",
					zap.String("component", breakerComponent),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
	}

	a.Client, err = client.NewOpenWeatherClient(apiKey, client.Options{
		BaseURL:        cfg.WeatherAPIURL,
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Breaker:        a.Breaker,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("weather client: %w", err)
	}

	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.Cache = mc
		a.closers = append(a.closers, mc.Close)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		a.Cache = cache.NewInMemoryCache(cfg.StaleCacheTTL)
		logger.Info("cache backend: in_memory")
	}

	var publishers []service.Publisher
	if !opts.DisablePublish && cfg.MQTTEnabled {
		a.Publisher, err = publish.NewPublisher(publish.Config{
			Enabled:     true,
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Timeout:     cfg.MQTTTimeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		publishers = append(publishers, a.Publisher)
		a.closers = append(a.closers, func() error { a.Publisher.Close(); return nil })
		logger.Info("mqtt publishing enabled", zap.String("broker", cfg.MQTTBroker), zap.String("topic", a.Publisher.Topic("dashboard")))
	}

	resolver := location.NewResolver(store, cfg.DefaultLocation, logger)
	a.Service = service.NewForecastService(a.Client, a.Cache, store, resolver, service.Config{
		CacheTTL:        cfg.CacheTTL,
		StaleTTL:        cfg.StaleCacheTTL,
		CoalesceTimeout: cfg.CoalesceTimeout,
		WarmLocations:   cfg.WarmLocations,
	}, logger, publishers...)
	return a, nil
}

// CachePing returns the cache health probe, or nil when the backend has none.
func (a *App) CachePing() func() error {
	if p, ok := a.Cache.(cache.Pinger); ok {
		return p.Ping
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

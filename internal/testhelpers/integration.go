//go:build integration
// +build integration

// Package testhelpers builds live service stacks for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-forecast-display/internal/cache"
	"github.com/kjstillabower/weather-forecast-display/internal/client"
	"github.com/kjstillabower/weather-forecast-display/internal/location"
	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/prefs"
	"github.com/kjstillabower/weather-forecast-display/internal/service"
)

// Seattle is the default location used by integration tests.
var Seattle = models.Coordinates{Lat: 47.6062, Lon: -122.3321}

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// Stack is a live service with its collaborators exposed for assertions.
type Stack struct {
	Service *service.ForecastService
	Client  *client.OpenWeatherClient
	Cache   cache.Cache
	Prefs   *prefs.MemoryStore
}

// SetupIntegrationService wires a ForecastService against the live upstream.
// Falls back to the in-memory cache when memcached is unreachable.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *Stack {
	t.Helper()
	logger := zaptest.NewLogger(t)

	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, client.Options{
		BaseURL: cfg.APIURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	var snapshots cache.Cache = cache.NewInMemoryCache(time.Hour)
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, time.Hour)
		if err == nil && mc.Ping() == nil {
			snapshots = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("using memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("memcached not available, using in-memory cache")
		}
	}

	store := prefs.NewMemoryStore()
	fallback := Seattle
	resolver := location.NewResolver(store, &fallback, logger)
	svc := service.NewForecastService(weatherClient, snapshots, store, resolver,
		service.Config{CacheTTL: 5 * time.Minute, StaleTTL: time.Hour}, logger)

	return &Stack{Service: svc, Client: weatherClient, Cache: snapshots, Prefs: store}
}

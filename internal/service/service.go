package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/cache"
	"github.com/kjstillabower/weather-forecast-display/internal/client"
	"github.com/kjstillabower/weather-forecast-display/internal/forecast"
	"github.com/kjstillabower/weather-forecast-display/internal/location"
	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/prefs"
)

// Publisher receives every newly built dashboard.
type Publisher interface {
	Publish(ctx context.Context, d *forecast.Dashboard) error
}

// staleLookupTimeout bounds the stale cache read after an upstream failure.
const staleLookupTimeout = time.Second

// Config holds service tuning. Zero values take defaults.
type Config struct {
	CacheTTL        time.Duration // how long a fetched snapshot counts as fresh
	StaleTTL        time.Duration // max snapshot age served when upstream fails (0 = disabled)
	CoalesceTimeout time.Duration // bound on one coalesced upstream refresh
	KeyCheckTTL     time.Duration // how long an API key validation result is reused
	// WarmLocations are refreshed by the cache warmer in addition to the saved location.
	WarmLocations []models.Coordinates
}

// ForecastService orchestrates resolve, fetch, cache, persist and build for
// the forecast dashboard, and holds the last dashboard it built.
type ForecastService struct {
	client     client.WeatherClient
	cache      cache.Cache
	store      prefs.Store
	resolver   *location.Resolver
	cfg        Config
	publishers []Publisher
	logger     *zap.Logger
	now        func() time.Time

	coalescer *coalescer[models.Snapshot]
	last      atomic.Pointer[forecast.Dashboard]
	prefsMu   sync.Mutex

	keyMu      sync.Mutex
	keyChecked time.Time
	keyErr     error
}

// NewForecastService wires the service. logger may be nil.
func NewForecastService(
	weather client.WeatherClient,
	snapshots cache.Cache,
	store prefs.Store,
	resolver *location.Resolver,
	cfg Config,
	logger *zap.Logger,
	publishers ...Publisher,
) *ForecastService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 10 * time.Second
	}
	if cfg.KeyCheckTTL <= 0 {
		cfg.KeyCheckTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastService{
		client:     weather,
		cache:      snapshots,
		store:      store,
		resolver:   resolver,
		cfg:        cfg,
		publishers: publishers,
		logger:     logger,
		now:        time.Now,
		coalescer:  newCoalescer[models.Snapshot](cfg.CoalesceTimeout),
	}
}

// Dashboard resolves the location, obtains a snapshot (cache, upstream, or
// stale cache) and builds a new dashboard. requested may be nil to use the saved
// or default location. refresh skips the fresh cache.
func (s *ForecastService) Dashboard(ctx context.Context, requested *models.Coordinates, refresh bool) (*forecast.Dashboard, error) {
	logger := observability.LoggerFrom(ctx, s.logger)
	start := s.now()

	resolved, err := s.resolver.Resolve(ctx, requested)
	if err != nil {
		return nil, fmt.Errorf("resolve location: %w", err)
	}
	coords := resolved.Coordinates
	key := coords.Key()

	snap, fresh, err := s.snapshot(ctx, coords, resolved.CityName, refresh)
	if err != nil {
		return nil, err
	}

	if fresh {
		s.rememberFetch(ctx, snap)
	}

	d := s.build(snap, fresh, logger)
	s.last.Store(d)
	observability.RecordDashboardBuild(snap, fresh)
	s.publish(ctx, d)

	logger.Debug("dashboard served",
		zap.String("location", key),
		zap.String("source", string(resolved.Source)),
		zap.Bool("fresh", fresh),
		zap.Bool("stale", snap.Stale),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return d, nil
}

// Last returns the most recently built dashboard.
func (s *ForecastService) Last() (*forecast.Dashboard, bool) {
	d := s.last.Load()
	return d, d != nil
}

// Refresh fetches coords from upstream and caches the snapshot without
// touching preferences or the last dashboard. Used by the cache warmer.
func (s *ForecastService) Refresh(ctx context.Context, coords models.Coordinates) error {
	_, _, err := s.coalescedFetch(ctx, coords, "")
	return err
}

// TrackedLocations returns the configured warm locations plus the saved location.
func (s *ForecastService) TrackedLocations(ctx context.Context) []models.Coordinates {
	out := append([]models.Coordinates(nil), s.cfg.WarmLocations...)
	if s.store == nil {
		return out
	}
	p, err := s.store.Load(ctx)
	if err != nil {
		observability.PrefsErrorsTotal.WithLabelValues("load").Inc()
		observability.LoggerFrom(ctx, s.logger).Warn("load preferences for warming failed", zap.Error(err))
		return out
	}
	if c, ok := p.Coordinates(); ok {
		out = append(out, c)
	}
	return out
}

// snapshot returns a snapshot for coords and whether it was fetched just now.
func (s *ForecastService) snapshot(ctx context.Context, coords models.Coordinates, cityHint string, refresh bool) (models.Snapshot, bool, error) {
	logger := observability.LoggerFrom(ctx, s.logger)
	key := coords.Key()

	if !refresh {
		getStart := time.Now()
		cached, ok, err := s.cache.Get(ctx, key)
		getDuration := time.Since(getStart).Seconds()
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
			observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
			logger.Warn("cache get failed", zap.String("location", key), zap.Error(err))
		case ok:
			observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
			observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
			logger.Debug("cache hit", zap.String("location", key))
			return cached, false, nil
		default:
			observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
			observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
		logger.Debug("cache miss, fetching upstream", zap.String("location", key))
	}

	snap, shared, err := s.coalescedFetch(ctx, coords, cityHint)
	if err == nil {
		if shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
		return snap, true, nil
	}

	if stale, ok := s.staleFallback(ctx, key); ok {
		logger.Info("serving stale cache",
			zap.String("location", key),
			zap.Duration("age", s.now().Sub(stale.FetchedAt)),
			zap.Error(err),
		)
		return stale, false, nil
	}
	return models.Snapshot{}, false, fmt.Errorf("fetch forecast for %s: %w", key, err)
}

// staleFallback reads the retained snapshot for key. The lookup outlives the
// caller's deadline, which has usually expired when the upstream hung.
func (s *ForecastService) staleFallback(ctx context.Context, key string) (models.Snapshot, bool) {
	if s.cfg.StaleTTL <= 0 {
		return models.Snapshot{}, false
	}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), staleLookupTimeout)
	defer cancel()
	stale, ok, err := s.cache.GetStale(lookupCtx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get_stale", categorizeCacheError(err)).Inc()
		return models.Snapshot{}, false
	}
	if !ok {
		return models.Snapshot{}, false
	}
	age := s.now().Sub(stale.FetchedAt)
	if age > s.cfg.StaleTTL {
		return models.Snapshot{}, false
	}
	stale.Stale = true
	observability.CacheLookupsTotal.WithLabelValues("stale").Inc()
	observability.StaleCacheAgeSeconds.Observe(age.Seconds())
	return stale, true
}

// coalescedFetch runs one upstream refresh per location and caches the result.
func (s *ForecastService) coalescedFetch(ctx context.Context, coords models.Coordinates, cityHint string) (models.Snapshot, bool, error) {
	return s.coalescer.Do(ctx, coords.Key(), func(runCtx context.Context) (models.Snapshot, error) {
		snap, err := s.fetch(runCtx, coords, cityHint)
		if err != nil {
			return models.Snapshot{}, err
		}
		s.cacheSnapshot(runCtx, snap)
		return snap, nil
	})
}

// fetch calls current weather, forecast and reverse geocoding concurrently.
// The forecast is required. Current weather and geocoding failures are logged
// and the snapshot is built without them.
func (s *ForecastService) fetch(ctx context.Context, coords models.Coordinates, cityHint string) (models.Snapshot, error) {
	logger := observability.LoggerFrom(ctx, s.logger)
	key := coords.Key()

	var (
		wg          sync.WaitGroup
		current     models.CurrentWeather
		currentErr  error
		fc          models.Forecast
		forecastErr error
		place       string
		geoErr      error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		current, currentErr = s.client.GetCurrentWeather(ctx, coords)
	}()
	go func() {
		defer wg.Done()
		fc, forecastErr = s.client.GetForecast(ctx, coords)
	}()
	go func() {
		defer wg.Done()
		place, geoErr = s.client.ReverseGeocode(ctx, coords)
	}()
	wg.Wait()

	if forecastErr != nil {
		return models.Snapshot{}, forecastErr
	}

	snap := models.Snapshot{
		Coordinates: coords,
		Forecast:    fc,
		FetchedAt:   s.now(),
	}
	if currentErr != nil {
		logger.Warn("current weather unavailable", zap.String("location", key), zap.Error(currentErr))
	} else {
		snap.Current = &current
	}

	snap.City = place
	if geoErr != nil {
		observability.GeocodeFallbacksTotal.Inc()
		snap.City = firstNonEmpty(cityHint, fc.City, current.Name)
		logger.Info("reverse geocoding failed, using fallback city",
			zap.String("location", key),
			zap.String("city", snap.City),
			zap.Error(geoErr),
		)
	}
	return snap, nil
}

func (s *ForecastService) cacheSnapshot(ctx context.Context, snap models.Snapshot) {
	key := snap.Coordinates.Key()
	setStart := time.Now()
	if err := s.cache.Set(ctx, key, snap, s.cfg.CacheTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		observability.LoggerFrom(ctx, s.logger).Warn("cache set failed", zap.String("location", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// rememberFetch saves the location, city and fetch time. Failures are logged.
func (s *ForecastService) rememberFetch(ctx context.Context, snap models.Snapshot) {
	if s.store == nil {
		return
	}
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	_, err := prefs.Update(ctx, s.store, func(p *prefs.Preferences) {
		p.SetLocation(snap.Coordinates)
		if snap.City != "" {
			p.CityName = snap.City
		}
		p.LastUpdate = snap.FetchedAt
	})
	if err != nil {
		observability.PrefsErrorsTotal.WithLabelValues("save").Inc()
		observability.LoggerFrom(ctx, s.logger).Warn("save preferences failed", zap.Error(err))
	}
}

func (s *ForecastService) build(snap models.Snapshot, fresh bool, logger *zap.Logger) *forecast.Dashboard {
	now := s.now()
	samples := snap.Forecast.Samples
	future := forecast.FilterFuture(samples, now)
	if past := len(samples) - len(future); past > 0 {
		observability.ForecastSamplesPastTotal.Add(float64(past))
	}

	d := forecast.BuildDashboard(forecast.DashboardInput{
		City:      snap.City,
		Current:   snap.Current,
		Samples:   samples,
		FetchedAt: snap.FetchedAt,
		Fresh:     fresh,
		Stale:     snap.Stale,
		Now:       now,
	}, logger)

	hours := 0
	for _, row := range d.Rows {
		hours += len(row.Hours)
	}
	if skipped := len(future) - hours; skipped > 0 {
		observability.ForecastSamplesSkippedTotal.Add(float64(skipped))
	}
	return &d
}

func (s *ForecastService) publish(ctx context.Context, d *forecast.Dashboard) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, d); err != nil {
			observability.LoggerFrom(ctx, s.logger).Warn("publish dashboard failed", zap.Error(err))
		}
	}
}

// Settings is the client-visible view of preferences. The API key itself is
// never exposed. DataExpired reports that the last fetch is older than the
// cache TTL.
type Settings struct {
	FirstLaunch bool      `json:"firstLaunch"`
	HasAPIKey   bool      `json:"hasApiKey"`
	CityName    string    `json:"cityName"`
	HasLocation bool      `json:"hasLocation"`
	LastUpdate  time.Time `json:"lastUpdate"`
	DataExpired bool      `json:"dataExpired"`
}

// Settings returns the current settings view.
func (s *ForecastService) Settings(ctx context.Context) (Settings, error) {
	p := prefs.Defaults()
	if s.store != nil {
		var err error
		if p, err = s.store.Load(ctx); err != nil {
			observability.PrefsErrorsTotal.WithLabelValues("load").Inc()
			return Settings{}, fmt.Errorf("load preferences: %w", err)
		}
	}
	return Settings{
		FirstLaunch: p.FirstLaunch,
		HasAPIKey:   s.client.HasAPIKey(),
		CityName:    p.CityName,
		HasLocation: p.HasLocation,
		LastUpdate:  p.LastUpdate,
		DataExpired: p.IsExpired(s.now(), s.cfg.CacheTTL),
	}, nil
}

// SetAPIKey applies key to the client, persists it and clears first launch.
// The client uses the key even if persisting it fails.
func (s *ForecastService) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	s.client.SetAPIKey(key)

	s.keyMu.Lock()
	s.keyChecked = time.Time{}
	s.keyErr = nil
	s.keyMu.Unlock()

	if s.store == nil {
		return nil
	}
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	if _, err := prefs.Update(ctx, s.store, func(p *prefs.Preferences) {
		p.APIKey = key
		p.FirstLaunch = false
	}); err != nil {
		observability.PrefsErrorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("save API key: %w", err)
	}
	observability.LoggerFrom(ctx, s.logger).Info("API key updated")
	return nil
}

// CheckAPIKey validates the configured key upstream. Results are reused for
// KeyCheckTTL. Transient upstream errors are not cached.
func (s *ForecastService) CheckAPIKey(ctx context.Context) error {
	if !s.client.HasAPIKey() {
		return client.ErrMissingAPIKey
	}
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	if !s.keyChecked.IsZero() && s.now().Sub(s.keyChecked) < s.cfg.KeyCheckTTL {
		return s.keyErr
	}
	err := s.client.ValidateAPIKey(ctx)
	if err != nil && !errors.Is(err, client.ErrInvalidAPIKey) {
		return err
	}
	s.keyChecked = s.now()
	s.keyErr = err
	return err
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
)

// Refresher is implemented by the service layer to refetch and cache a location.
// Used by Warmer to avoid a circular dependency on the service package.
type Refresher interface {
	Refresh(ctx context.Context, coords models.Coordinates) error
}

// LocationSource returns the coordinates to warm on each run. It is called per
// run so locations saved after startup are picked up.
type LocationSource func(ctx context.Context) []models.Coordinates

// Warmer refreshes the cache for tracked locations, once or on a gocron schedule.
type Warmer struct {
	refresher Refresher
	locations LocationSource
	timeout   time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewWarmer creates a Warmer. timeout bounds each scheduled run.
func NewWarmer(refresher Refresher, locations LocationSource, timeout time.Duration, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{refresher: refresher, locations: locations, timeout: timeout, logger: logger}
}

// Warm refreshes each location concurrently. Duplicate coordinates are refreshed once.
// Returns an aggregated error if any location failed.
func (w *Warmer) Warm(ctx context.Context) error {
	var coords []models.Coordinates
	if w.locations != nil {
		coords = dedupe(w.locations(ctx))
	}
	if len(coords) == 0 {
		return nil
	}

	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(coords)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(coords))
	for _, c := range coords {
		wg.Add(1)
		go func(c models.Coordinates) {
			defer wg.Done()
			if err := w.refresher.Refresh(ctx, c); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", c.Key(), err)
			}
		}(c)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(coords)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start schedules Warm every interval, starting immediately. Runs do not overlap.
// The scheduler stops when Stop is called or ctx is done.
func (w *Warmer) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %s", interval)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("cache warmer already started")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).StartImmediately().Do(func() {
		runCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if err := w.Warm(runCtx); err != nil {
			w.logger.Warn("scheduled cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop halts scheduled runs. Safe to call more than once.
func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}

// Running reports whether a schedule is active.
func (w *Warmer) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scheduler != nil
}

func dedupe(coords []models.Coordinates) []models.Coordinates {
	seen := make(map[string]struct{}, len(coords))
	out := make([]models.Coordinates, 0, len(coords))
	for _, c := range coords {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

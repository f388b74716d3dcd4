// Package location picks the coordinates a forecast request should use.
package location

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/prefs"
)

// ErrNoLocation is returned when no source yields coordinates.
var ErrNoLocation = errors.New("no location available")

// Source names where resolved coordinates came from.
type Source string

const (
	SourceRequest     Source = "request"
	SourcePreferences Source = "preferences"
	SourceDefault     Source = "default"
)

// Resolved is a resolved location.
type Resolved struct {
	Coordinates models.Coordinates
	Source      Source
	// CityName is the saved city when Source is preferences and the coordinates match.
	CityName string
}

// Resolver resolves in order: explicit request coordinates, saved preferences,
// configured default.
type Resolver struct {
	store    prefs.Store
	fallback *models.Coordinates
	logger   *zap.Logger
}

// NewResolver creates a Resolver. fallback may be nil.
func NewResolver(store prefs.Store, fallback *models.Coordinates, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, fallback: fallback, logger: logger}
}

// Resolve returns the coordinates to use. requested may be nil. A preference
// read failure is logged and resolution continues with the default.
func (r *Resolver) Resolve(ctx context.Context, requested *models.Coordinates) (Resolved, error) {
	if requested != nil {
		return Resolved{Coordinates: *requested, Source: SourceRequest}, nil
	}

	if r.store != nil {
		p, err := r.store.Load(ctx)
		if err != nil {
			observability.PrefsErrorsTotal.WithLabelValues("load").Inc()
			observability.LoggerFrom(ctx, r.logger).Warn("load preferences for location failed", zap.Error(err))
		} else if c, ok := p.Coordinates(); ok {
			return Resolved{Coordinates: c, Source: SourcePreferences, CityName: p.CityName}, nil
		}
	}

	if r.fallback != nil {
		return Resolved{Coordinates: *r.fallback, Source: SourceDefault}, nil
	}
	return Resolved{}, ErrNoLocation
}

// Package prefs persists the user's display preferences: the last resolved
// location, the city name shown for it, when data was last fetched, the API key
// and whether the first-launch prompt is still pending.
package prefs

import (
	"context"
	"time"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// Preferences is the single persisted record.
type Preferences struct {
	Latitude    float64   `yaml:"latitude" json:"latitude"`
	Longitude   float64   `yaml:"longitude" json:"longitude"`
	HasLocation bool      `yaml:"hasLocation" json:"hasLocation"`
	CityName    string    `yaml:"cityName" json:"cityName"`
	LastUpdate  time.Time `yaml:"lastUpdate" json:"lastUpdate"`
	APIKey      string    `yaml:"apiKey" json:"-"`
	FirstLaunch bool      `yaml:"firstLaunch" json:"firstLaunch"`
}

// Defaults is what Load returns before anything has been saved.
func Defaults() Preferences {
	return Preferences{FirstLaunch: true}
}

// Coordinates returns the saved location, if any.
func (p Preferences) Coordinates() (models.Coordinates, bool) {
	if !p.HasLocation {
		return models.Coordinates{}, false
	}
	return models.Coordinates{Lat: p.Latitude, Lon: p.Longitude}, true
}

// SetLocation records coords as the last used location.
func (p *Preferences) SetLocation(coords models.Coordinates) {
	p.Latitude = coords.Lat
	p.Longitude = coords.Lon
	p.HasLocation = true
}

// IsExpired reports whether data fetched at LastUpdate is older than maxAge at now.
// A zero LastUpdate is always expired.
func (p Preferences) IsExpired(now time.Time, maxAge time.Duration) bool {
	if p.LastUpdate.IsZero() {
		return true
	}
	return now.Sub(p.LastUpdate) > maxAge
}

// Store loads and saves Preferences.
type Store interface {
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

// Update loads, applies fn and saves. Callers serialize concurrent updates.
func Update(ctx context.Context, s Store, fn func(*Preferences)) (Preferences, error) {
	p, err := s.Load(ctx)
	if err != nil {
		return Preferences{}, err
	}
	fn(&p)
	if err := s.Save(ctx, p); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

package location

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/prefs"
)

var (
	seattle = models.Coordinates{Lat: 47.6062, Lon: -122.3321}
	boston  = models.Coordinates{Lat: 42.3601, Lon: -71.0589}
	london  = models.Coordinates{Lat: 51.5074, Lon: -0.1278}
)

func savedStore(t *testing.T, c models.Coordinates, city string) *prefs.MemoryStore {
	t.Helper()
	s := prefs.NewMemoryStore()
	p := prefs.Defaults()
	p.SetLocation(c)
	p.CityName = city
	if err := s.Save(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		store      prefs.Store
		fallback   *models.Coordinates
		requested  *models.Coordinates
		want       models.Coordinates
		wantSource Source
		wantCity   string
		wantErr    error
	}{
		{
			name:       "request wins",
			store:      savedStore(t, boston, "Boston"),
			fallback:   &london,
			requested:  &seattle,
			want:       seattle,
			wantSource: SourceRequest,
		},
		{
			name:       "saved preferences",
			store:      savedStore(t, boston, "Boston"),
			fallback:   &london,
			want:       boston,
			wantSource: SourcePreferences,
			wantCity:   "Boston",
		},
		{
			name:       "default when nothing saved",
			store:      prefs.NewMemoryStore(),
			fallback:   &london,
			want:       london,
			wantSource: SourceDefault,
		},
		{
			name:       "default without store",
			fallback:   &london,
			want:       london,
			wantSource: SourceDefault,
		},
		{
			name:    "nothing resolves",
			store:   prefs.NewMemoryStore(),
			wantErr: ErrNoLocation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, tt.fallback, nil)
			got, err := r.Resolve(context.Background(), tt.requested)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Coordinates != tt.want || got.Source != tt.wantSource || got.CityName != tt.wantCity {
				t.Errorf("Resolve() = %+v, want %v from %s (%q)", got, tt.want, tt.wantSource, tt.wantCity)
			}
		})
	}
}

func TestResolver_StoreErrorFallsBack(t *testing.T) {
	store := prefs.NewMemoryStore()
	store.Err = errors.New("disk unreadable")
	core, logs := observer.New(zap.WarnLevel)

	r := NewResolver(store, &london, zap.New(core))
	got, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != SourceDefault {
		t.Errorf("Source = %s, want default", got.Source)
	}
	if logs.FilterMessage("load preferences for location failed").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

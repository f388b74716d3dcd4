//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestOpenWeatherClient_Integration(t *testing.T) {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	c, err := NewOpenWeatherClient(apiKey, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	ctx := context.Background()

	if err := c.ValidateAPIKey(ctx); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}

	fc, err := c.GetForecast(ctx, seattle)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if len(fc.Samples) == 0 {
		t.Error("GetForecast() returned no samples")
	}

	name, err := c.ReverseGeocode(ctx, seattle)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if name == "" {
		t.Error("ReverseGeocode() returned empty name")
	}
}

//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-forecast-display/internal/forecast"
	"github.com/kjstillabower/weather-forecast-display/internal/lifecycle"
	testhelpers "github.com/kjstillabower/weather-forecast-display/internal/testhelpers"
	"github.com/kjstillabower/weather-forecast-display/internal/traffic"
)

func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, *testhelpers.Stack) {
	t.Helper()
	stack := testhelpers.SetupIntegrationService(t, testhelpers.GetIntegrationConfig(t))
	logger := zaptest.NewLogger(t)
	h := NewHandler(stack.Service, &HealthConfig{Tracker: traffic.NewTracker()}, nil, logger)
	return NewRouter(h, RouterConfig{Limiter: limiter, Logger: logger}), stack
}

func TestIntegration_Forecast_FetchThenCache(t *testing.T) {
	router, stack := setupIntegrationRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast?lat=47.6062&lon=-122.3321", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var first forecast.Dashboard
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.Fresh || len(first.Rows) == 0 || first.City == "" {
		t.Errorf("first dashboard = fresh %v rows %d city %q", first.Fresh, len(first.Rows), first.City)
	}
	if !strings.HasPrefix(first.UpdatedLabel, "Updated at ") {
		t.Errorf("UpdatedLabel = %q", first.UpdatedLabel)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast", nil))
	var second forecast.Dashboard
	if err := json.NewDecoder(w.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.Fresh {
		t.Error("second dashboard should be served from cache")
	}
	if !stack.Prefs.Saved() {
		t.Error("location not saved to preferences after fresh fetch")
	}
}

func TestIntegration_Health(t *testing.T) {
	router, _ := setupIntegrationRouter(t, nil)
	lifecycle.SetReady(true)
	defer lifecycle.SetReady(false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestIntegration_Metrics_Format(t *testing.T) {
	router, _ := setupIntegrationRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forecast", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal", "dashboardBuildsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	router, _ := setupIntegrationRouter(t, rate.NewLimiter(1, 2))
	codes := map[int]int{}
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast", nil))
		codes[w.Code]++
	}
	if codes[http.StatusTooManyRequests] < 1 {
		t.Errorf("status counts = %v, want at least one 429", codes)
	}
}

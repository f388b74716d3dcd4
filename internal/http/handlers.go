package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/client"
	"github.com/kjstillabower/weather-forecast-display/internal/forecast"
	"github.com/kjstillabower/weather-forecast-display/internal/lifecycle"
	"github.com/kjstillabower/weather-forecast-display/internal/location"
	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
	"github.com/kjstillabower/weather-forecast-display/internal/service"
	"github.com/kjstillabower/weather-forecast-display/internal/traffic"
	"github.com/kjstillabower/weather-forecast-display/internal/validation"
)

const maxSettingsBody = 4 << 10

// ForecastService is the subset of service.ForecastService used by the handlers.
type ForecastService interface {
	Dashboard(ctx context.Context, requested *models.Coordinates, refresh bool) (*forecast.Dashboard, error)
	Last() (*forecast.Dashboard, bool)
	Settings(ctx context.Context) (service.Settings, error)
	SetAPIKey(ctx context.Context, key string) error
	CheckAPIKey(ctx context.Context) error
}

// Notifier is told when health turns degraded.
type Notifier interface {
	Notify()
}

// HealthConfig holds health evaluation inputs.
type HealthConfig struct {
	Thresholds traffic.Thresholds
	// Tracker defaults to traffic.Default().
	Tracker *traffic.Tracker
	// Uptime defaults to lifecycle.Uptime.
	Uptime func() time.Duration
	// CachePing, when set, reports cache reachability.
	CachePing func() error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc          ForecastService
	healthConfig HealthConfig
	recovery     Notifier
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. health and recovery may be nil.
func NewHandler(svc ForecastService, health *HealthConfig, recovery Notifier, logger *zap.Logger) *Handler {
	h := &Handler{svc: svc, recovery: recovery, logger: logger}
	if health != nil {
		h.healthConfig = *health
	}
	if h.healthConfig.Tracker == nil {
		h.healthConfig.Tracker = traffic.Default()
	}
	if h.healthConfig.Uptime == nil {
		h.healthConfig.Uptime = lifecycle.Uptime
	}
	if h.healthConfig.Version == "" {
		h.healthConfig.Version = "dev"
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// GetForecast handles GET /forecast?lat=&lon=&refresh=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coords, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	refresh, err := validation.ParseRefresh(q.Get("refresh"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	d, err := h.svc.Dashboard(r.Context(), coords, refresh)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.healthConfig.Tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, d)
}

// GetLastForecast handles GET /forecast/last.
func (h *Handler) GetLastForecast(w http.ResponseWriter, r *http.Request) {
	d, ok := h.svc.Last()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_DASHBOARD", "No dashboard has been built yet")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("load settings failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "SETTINGS_UNAVAILABLE", "Unable to load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// PutAPIKey handles PUT /settings/api-key.
func (h *Handler) PutAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Body must be {\"apiKey\": \"...\"}")
		return
	}
	key, err := validation.ValidateAPIKey(req.APIKey)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_API_KEY", err.Error())
		return
	}
	if err := h.svc.SetAPIKey(r.Context(), key); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("save API key failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "SETTINGS_UNAVAILABLE", "API key applied but could not be saved")
		return
	}
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	switch result.reason {
	case "api_key_missing":
		checks["weatherApi"] = "unconfigured"
	case "api_key_invalid", "error_rate_breach", "upstream_unreachable":
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   h.healthConfig.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > API key > traffic (overloaded, idle, degraded) > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "startup"}
	}
	if err := h.svc.CheckAPIKey(ctx); err != nil {
		switch {
		case errors.Is(err, client.ErrMissingAPIKey):
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_missing"}
		case errors.Is(err, client.ErrInvalidAPIKey):
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		default:
			h.notifyDegraded()
			return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unreachable"}
		}
	}
	cond := h.healthConfig.Tracker.Evaluate(h.healthConfig.Thresholds, h.healthConfig.Uptime())
	switch cond.Status {
	case traffic.StatusOverloaded:
		return healthResult{cond.Status, http.StatusServiceUnavailable, cond.Reason}
	case traffic.StatusIdle:
		return healthResult{cond.Status, http.StatusOK, cond.Reason}
	case traffic.StatusDegraded:
		h.notifyDegraded()
		return healthResult{cond.Status, http.StatusServiceUnavailable, cond.Reason}
	}
	return healthResult{traffic.StatusHealthy, http.StatusOK, ""}
}

func (h *Handler) notifyDegraded() {
	if h.recovery != nil {
		h.recovery.Notify()
	}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": {code, message, requestId}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps service errors to HTTP errors. Upstream failures
// count toward the degraded error rate; caller errors do not.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFrom(r.Context(), h.logger)
	switch {
	case errors.Is(err, location.ErrNoLocation):
		writeError(w, r, http.StatusBadRequest, "LOCATION_UNAVAILABLE", "No coordinates given and no saved or default location")
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusBadRequest, "LOCATION_UNAVAILABLE", "No weather data for these coordinates")
	case errors.Is(err, client.ErrMissingAPIKey):
		writeError(w, r, http.StatusConflict, "API_KEY_REQUIRED", "Set an API key via PUT /settings/api-key")
	case errors.Is(err, client.ErrInvalidAPIKey):
		writeError(w, r, http.StatusBadRequest, "INVALID_API_KEY", "The configured API key was rejected")
	default:
		h.healthConfig.Tracker.RecordError()
		logger.Debug("upstream error",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))),
		)
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch forecast data")
	}
}

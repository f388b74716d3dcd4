package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-forecast-display/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Limiter guards /forecast. nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds /forecast requests. 0 disables it.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter registers the API routes on a new gorilla/mux router.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(cfg.Logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	router.HandleFunc("/settings/api-key", h.PutAPIKey).Methods(http.MethodPut)
	router.HandleFunc("/forecast/last", h.GetLastForecast).Methods(http.MethodGet)

	var forecast http.Handler = http.HandlerFunc(h.GetForecast)
	forecast = TimeoutMiddleware(cfg.RequestTimeout)(forecast)
	forecast = RateLimitMiddleware(cfg.Limiter)(forecast)
	router.Handle("/forecast", forecast).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	return router
}

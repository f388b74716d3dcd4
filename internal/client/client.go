package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/weather-forecast-display/internal/circuitbreaker"
	"github.com/kjstillabower/weather-forecast-display/internal/models"
	"github.com/kjstillabower/weather-forecast-display/internal/observability"
)

// WeatherClient is the upstream surface used by the service.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, coords models.Coordinates) (models.CurrentWeather, error)
	GetForecast(ctx context.Context, coords models.Coordinates) (models.Forecast, error)
	ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error)
	ValidateAPIKey(ctx context.Context) error
	SetAPIKey(key string)
	HasAPIKey() bool
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrMissingAPIKey    = errors.New("API key not configured")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit open")
)

// Endpoint labels used in metrics and error messages.
const (
	EndpointWeather        = "weather"
	EndpointForecast       = "forecast"
	EndpointReverseGeocode = "reverse_geocode"
)

const (
	weatherPath        = "/data/2.5/weather"
	forecastPath       = "/data/2.5/forecast"
	reverseGeocodePath = "/geo/1.0/reverse"
)

// Options configures an OpenWeatherClient. Zero values take defaults.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Breaker        *circuitbreaker.CircuitBreaker
}

type OpenWeatherClient struct {
	mu     sync.RWMutex
	apiKey string

	baseURL        *url.URL
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient builds a client against opts.BaseURL. An empty apiKey is
// accepted; calls fail with ErrMissingAPIKey until SetAPIKey is called.
func NewOpenWeatherClient(apiKey string, opts Options) (*OpenWeatherClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openweathermap.org"
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: scheme and host required", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}

	return &OpenWeatherClient{
		apiKey:         strings.TrimSpace(apiKey),
		baseURL:        base,
		timeout:        opts.Timeout,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		breaker:        opts.Breaker,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// SetAPIKey replaces the key used for subsequent requests.
func (c *OpenWeatherClient) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// HasAPIKey reports whether a key is configured.
func (c *OpenWeatherClient) HasAPIKey() bool {
	return c.key() != ""
}

func (c *OpenWeatherClient) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

type condition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type currentResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []condition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  *struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []condition `json:"weather"`
	} `json:"list"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
}

type geocodeResponse []struct {
	Name string `json:"name"`
}

// GetCurrentWeather fetches current conditions. Temperatures are Kelvin.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, coords models.Coordinates) (models.CurrentWeather, error) {
	var resp currentResponse
	if err := c.getJSON(ctx, EndpointWeather, weatherPath, coordParams(coords), &resp); err != nil {
		return models.CurrentWeather{}, err
	}
	return models.CurrentWeather{
		Name:      resp.Name,
		Temp:      resp.Main.Temp,
		FeelsLike: resp.Main.FeelsLike,
		Humidity:  resp.Main.Humidity,
		Pressure:  resp.Main.Pressure,
		WindSpeed: resp.Wind.Speed,
		Condition: firstCondition(resp.Weather),
	}, nil
}

// GetForecast fetches the 5 day / 3 hour forecast. Temperatures are Kelvin.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, coords models.Coordinates) (models.Forecast, error) {
	var resp forecastResponse
	if err := c.getJSON(ctx, EndpointForecast, forecastPath, coordParams(coords), &resp); err != nil {
		return models.Forecast{}, err
	}
	samples := make([]models.ForecastSample, 0, len(resp.List))
	for _, item := range resp.List {
		s := models.ForecastSample{
			Timestamp: item.DtTxt,
			Condition: firstCondition(item.Weather),
		}
		if item.Main != nil {
			s.Main = &models.SampleMain{
				Temp:    item.Main.Temp,
				TempMin: item.Main.TempMin,
				TempMax: item.Main.TempMax,
			}
		}
		samples = append(samples, s)
	}
	return models.Forecast{City: resp.City.Name, Samples: samples}, nil
}

// ReverseGeocode returns the place name for coords. An empty result is ErrLocationNotFound.
func (c *OpenWeatherClient) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	params := coordParams(coords)
	params.Set("limit", "1")
	var resp geocodeResponse
	if err := c.getJSON(ctx, EndpointReverseGeocode, reverseGeocodePath, params, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 || resp[0].Name == "" {
		return "", fmt.Errorf("%w: no place name for %s", ErrLocationNotFound, coords.Key())
	}
	return resp[0].Name, nil
}

// ValidateAPIKey performs one current-weather request and reports whether the
// key is accepted. It bypasses retries and the circuit breaker.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	key := c.key()
	if key == "" {
		return ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, weatherPath, coordParams(models.Coordinates{Lat: 51.5074, Lon: -0.1278}), key)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: validation HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	key := c.key()
	if key == "" {
		return ErrMissingAPIKey
	}

	call := func() error {
		return c.withRetry(ctx, endpoint, func() error {
			return c.callAPI(ctx, endpoint, path, params, key, out)
		})
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%s: %w", endpoint, ErrCircuitOpen)
		}
	} else {
		err = call()
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
	}
	return err
}

func (c *OpenWeatherClient) withRetry(ctx context.Context, endpoint string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(ctx, err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, path string, params url.Values, key string, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params, key)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s request timeout: %w", endpoint, err)
		}
		return fmt.Errorf("%s http request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read response body: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s parse response: %w", endpoint, err)
	}
	return nil
}

// isRetryable retries rate limits, 5xx and per-attempt timeouts. A cancelled
// or expired caller context is never retried.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, path string, params url.Values, key string) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func coordParams(coords models.Coordinates) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	return params
}

func firstCondition(conds []condition) *models.Condition {
	if len(conds) == 0 {
		return nil
	}
	return &models.Condition{Description: conds[0].Description, Icon: conds[0].Icon}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// IsBreakerNeutral reports errors a circuit breaker should not count as upstream
// failures: caller cancellation, unknown locations and bad or missing keys.
func IsBreakerNeutral(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrMissingAPIKey)
}

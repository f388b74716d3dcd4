package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvKeys = []string{
	"ENV_NAME", "PORT", "WEATHER_API_KEY", "WEATHER_API_URL", "CACHE_BACKEND",
	"MEMCACHED_ADDRS", "PREFS_BACKEND", "PREFS_PATH", "MQTT_BROKER", "MQTT_PASSWORD",
}

// clearEnv unsets config variables for the test and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

const minimalEnvYAML = `
server:
  port: "8081"
weather_api:
  url: https://example.test/
  timeout: 2s
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	writeFile(t, filepath.Join(dir, "config", "dev.yaml"), content)
}

func writeSecretsFile(t *testing.T, dir, content string) {
	writeFile(t, filepath.Join(dir, "config", "secrets.yaml"), content)
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "8081"},
		{"WeatherAPIKey", cfg.WeatherAPIKey, ""},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "https://example.test"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 2 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 10 * time.Second},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CacheTTL", cfg.CacheTTL, 5 * time.Minute},
		{"StaleCacheTTL", cfg.StaleCacheTTL, time.Hour},
		{"WarmInterval", cfg.WarmInterval, time.Duration(0)},
		{"PrefsBackend", cfg.PrefsBackend, "file"},
		{"PrefsPath", cfg.PrefsPath, filepath.Join(dir, "data", "preferences.yaml")},
		{"RetryAttempts", cfg.RetryAttempts, 3},
		{"RateLimitRPS", cfg.RateLimitRPS, 10},
		{"RateLimitBurst", cfg.RateLimitBurst, 20},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 5},
		{"MQTTEnabled", cfg.MQTTEnabled, false},
		{"MQTTTopicPrefix", cfg.MQTTTopicPrefix, "weather"},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 50},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.DefaultLocation != nil {
		t.Errorf("DefaultLocation = %+v, want nil", cfg.DefaultLocation)
	}
}

func TestLoadFrom_FullFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: 3s
request:
  timeout: 8s
cache:
  backend: memcached
  ttl: 10m
  stale_ttl: 0s
  memcached:
    addrs: cache-1:11211,cache-2:11211
    max_idle_conns: 4
  warming:
    interval: 15m
    locations:
      - {lat: 47.6062, lon: -122.3321}
      - {lat: 51.5074, lon: -0.1278}
preferences:
  backend: sqlite
  path: /var/lib/forecast/prefs.db
default_location: {lat: 40.7128, lon: -74.006}
reliability:
  circuit_breaker:
    enabled: false
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic_prefix: /home/display/
lifecycle:
  degraded_error_pct: 25
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" || cfg.MemcachedMaxIdleConns != 4 {
		t.Errorf("memcached config = %q %q %d", cfg.CacheBackend, cfg.MemcachedAddrs, cfg.MemcachedMaxIdleConns)
	}
	if cfg.CacheTTL != 10*time.Minute || cfg.StaleCacheTTL != 0 {
		t.Errorf("ttl = %v stale = %v, want 10m and 0 (stale serving disabled)", cfg.CacheTTL, cfg.StaleCacheTTL)
	}
	if cfg.WarmInterval != 15*time.Minute || len(cfg.WarmLocations) != 2 || cfg.WarmLocations[1].Lat != 51.5074 {
		t.Errorf("warming = %v %+v", cfg.WarmInterval, cfg.WarmLocations)
	}
	if cfg.PrefsBackend != "sqlite" || cfg.PrefsPath != "/var/lib/forecast/prefs.db" {
		t.Errorf("prefs = %q %q", cfg.PrefsBackend, cfg.PrefsPath)
	}
	if cfg.DefaultLocation == nil || cfg.DefaultLocation.Lat != 40.7128 || cfg.DefaultLocation.Lon != -74.006 {
		t.Errorf("DefaultLocation = %+v", cfg.DefaultLocation)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false")
	}
	if !cfg.MQTTEnabled || cfg.MQTTBroker != "tcp://broker:1883" || cfg.MQTTTopicPrefix != "home/display" {
		t.Errorf("mqtt = %v %q %q", cfg.MQTTEnabled, cfg.MQTTBroker, cfg.MQTTTopicPrefix)
	}
	if cfg.RequestTimeout != 8*time.Second || cfg.DegradedErrorPct != 25 {
		t.Errorf("RequestTimeout = %v DegradedErrorPct = %d", cfg.RequestTimeout, cfg.DegradedErrorPct)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"cache:\n  backend: in_memory\npreferences:\n  backend: file\n")
	writeSecretsFile(t, dir, "weather_api_key: from-secrets\n")
	t.Setenv("WEATHER_API_KEY", " from-env ")
	t.Setenv("CACHE_BACKEND", "MEMCACHED")
	t.Setenv("MEMCACHED_ADDRS", "mc:11211")
	t.Setenv("PREFS_BACKEND", "memory")
	t.Setenv("PREFS_PATH", "")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-env" {
		t.Errorf("WeatherAPIKey = %q, want from-env", cfg.WeatherAPIKey)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "mc:11211" {
		t.Errorf("cache = %q %q", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.PrefsBackend != "memory" || cfg.PrefsPath != "" {
		t.Errorf("prefs = %q %q, want memory with no path", cfg.PrefsBackend, cfg.PrefsPath)
	}
}

func TestLoadFrom_SecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\nmqtt_password: hunter2\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q", cfg.WeatherAPIKey)
	}
	if cfg.MQTTPassword != "hunter2" {
		t.Errorf("MQTTPassword = %q", cfg.MQTTPassword)
	}
}

func TestLoadFrom_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeFile(t, filepath.Join(dir, ".env"), "WEATHER_API_KEY=key-from-dotenv\nCACHE_BACKEND=memcached\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" || cfg.CacheBackend != "memcached" {
		t.Errorf("key = %q backend = %q, want values from .env", cfg.WeatherAPIKey, cfg.CacheBackend)
	}
}

func TestLoadFrom_DotEnvDoesNotOverrideEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeFile(t, filepath.Join(dir, ".env"), "WEATHER_API_KEY=key-from-dotenv\n")
	t.Setenv("WEATHER_API_KEY", "key-from-env")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want key-from-env", cfg.WeatherAPIKey)
	}
}

func TestLoadFrom_SelectsEnvName(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeFile(t, filepath.Join(dir, "config", "prod.yaml"), "server:\n  port: \"9090\"\n")
	t.Setenv("ENV_NAME", "prod")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090 from prod.yaml", cfg.ServerPort)
	}
}

func TestLoadFrom_DurationFallbacks(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: 2s
cache:
  ttl: not-a-duration
  coalesce_timeout: -5s
shutdown:
  timeout: ""
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default 5m", cfg.CacheTTL)
	}
	if cfg.CoalesceTimeout != 10*time.Second {
		t.Errorf("CoalesceTimeout = %v, want default 10s", cfg.CoalesceTimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoadFrom_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timeout: 12s\nrequest:\n  timeout: 5s\n")
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.RequestTimeout != 13*time.Second {
		t.Errorf("RequestTimeout = %v, want 13s", cfg.RequestTimeout)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		secrets string
		wantErr string
	}{
		{"zero upstream timeout", "weather_api:\n  timeout: 0s\n", "", "weather_api.timeout"},
		{"bad cache backend", "cache:\n  backend: redis\n", "", "cache.backend"},
		{"bad prefs backend", "preferences:\n  backend: etcd\n", "", "preferences.backend"},
		{"negative stale ttl", "cache:\n  stale_ttl: -1m\n", "", "cache.stale_ttl"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n", "", "mqtt.broker"},
		{"default location missing lon", "default_location: {lat: 10}\n", "", "default_location"},
		{"warm location out of range", "cache:\n  warming:\n    locations:\n      - {lat: 95, lon: 0}\n", "", "cache.warming.locations[0]"},
		{"invalid yaml", "server: [unclosed\n", "", "parse config file"},
		{"invalid secrets", "", "weather_api_key: [unclosed\n", "parse secrets file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			if tt.secrets != "" {
				writeSecretsFile(t, dir, tt.secrets)
			}
			cfg, err := LoadFrom(dir)
			if err == nil {
				t.Fatalf("LoadFrom() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFrom() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFrom_ConfigFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	_, err := LoadFrom(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadFrom() error = %v, want config file not found", err)
	}
}

func TestLoad_UsesWorkingDirectory(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8081" {
		t.Errorf("ServerPort = %q, want 8081", cfg.ServerPort)
	}
}

func TestRepoConfigFilesLoad(t *testing.T) {
	clearEnv(t)
	root := filepath.Join("..", "..")
	if _, err := os.Stat(filepath.Join(root, "config", "dev.yaml")); err != nil {
		t.Skip("config/dev.yaml not found")
	}
	if _, err := LoadFrom(root); err != nil {
		t.Errorf("LoadFrom(repo root) error = %v", err)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-forecast-display/internal/validation"
)

const testConfigYAML = `
weather_api:
  url: http://127.0.0.1:1
  timeout: 1s
cache:
  backend: in_memory
preferences:
  backend: file
`

// setupConfigDir writes a minimal config tree and points the preferences file
// into the test's temp dir.
func setupConfigDir(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "WEATHER_API_KEY", "WEATHER_API_URL", "CACHE_BACKEND", "PREFS_BACKEND", "MQTT_BROKER"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(testConfigYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PREFS_PATH", filepath.Join(dir, "data", "preferences.yaml"))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSettings_FreshInstall(t *testing.T) {
	dir := setupConfigDir(t)

	out, err := execute(t, "settings", "-c", dir)
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	for _, want := range []string{"First launch: true", "API key set:  false", "Location:     none saved", "Data expired: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCmd_FlagsScopedToCommandTree(t *testing.T) {
	dir := setupConfigDir(t)

	out, err := execute(t, "settings", "--json", "-c", dir)
	if err != nil {
		t.Fatalf("settings --json error = %v", err)
	}
	if !json.Valid([]byte(out)) {
		t.Fatalf("settings --json output is not JSON:\n%s", out)
	}

	out, err = execute(t, "settings", "-c", dir)
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	if !strings.Contains(out, "First launch:") || json.Valid([]byte(out)) {
		t.Errorf("--json carried over into a new command tree:\n%s", out)
	}
}

func TestSettingsAPIKey_SavesAndPersists(t *testing.T) {
	dir := setupConfigDir(t)

	out, err := execute(t, "settings", "api-key", "abcdef0123456789abcdef0123456789", "-c", dir)
	if err != nil {
		t.Fatalf("api-key error = %v", err)
	}
	if !strings.Contains(out, "API key saved.") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "settings", "--json", "-c", dir)
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	var got struct {
		FirstLaunch bool `json:"firstLaunch"`
		HasAPIKey   bool `json:"hasApiKey"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.FirstLaunch || !got.HasAPIKey {
		t.Errorf("settings after save = %+v, want first launch cleared and key set", got)
	}
}

func TestSettingsAPIKey_RejectsBadFormat(t *testing.T) {
	dir := setupConfigDir(t)

	_, err := execute(t, "settings", "api-key", "short", "-c", dir)
	if !errors.Is(err, validation.ErrAPIKeyFormat) {
		t.Fatalf("error = %v, want ErrAPIKeyFormat", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "data", "preferences.yaml")); !os.IsNotExist(statErr) {
		t.Errorf("preferences written for rejected key: %v", statErr)
	}
}

func TestShow_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"lat without lon", []string{"show", "--lat", "47.6"}},
		{"latitude out of range", []string{"show", "--lat", "91", "--lon", "0"}},
		{"unexpected positional", []string{"show", "seattle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestShow_MissingAPIKey(t *testing.T) {
	dir := setupConfigDir(t)

	_, err := execute(t, "show", "--lat", "47.6", "--lon", "-122.3", "-c", dir)
	if err == nil {
		t.Fatal("expected error without an API key")
	}
	if !strings.Contains(err.Error(), "build dashboard") {
		t.Errorf("error = %v", err)
	}
}

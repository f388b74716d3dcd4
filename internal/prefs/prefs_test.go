package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

func samplePrefs() Preferences {
	p := Preferences{
		CityName:    "Seattle",
		LastUpdate:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		APIKey:      "0123456789abcdef0123456789abcdef",
		FirstLaunch: false,
	}
	p.SetLocation(models.Coordinates{Lat: 47.6062, Lon: -122.3321})
	return p
}

func TestPreferences_Coordinates(t *testing.T) {
	if _, ok := Defaults().Coordinates(); ok {
		t.Error("Defaults().Coordinates() ok = true, want false")
	}
	c, ok := samplePrefs().Coordinates()
	if !ok || c.Lat != 47.6062 || c.Lon != -122.3321 {
		t.Errorf("Coordinates() = (%+v, %v)", c, ok)
	}
}

func TestPreferences_IsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		lastUpdate time.Time
		want       bool
	}{
		{"never updated", time.Time{}, true},
		{"just updated", now, false},
		{"exactly max age", now.Add(-5 * time.Minute), false},
		{"older than max age", now.Add(-6 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preferences{LastUpdate: tt.lastUpdate}
			if got := p.IsExpired(now, 5*time.Minute); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// storeContract exercises behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() empty error = %v", err)
	}
	if got != Defaults() {
		t.Errorf("Load() empty = %+v, want Defaults", got)
	}

	want := samplePrefs()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.LastUpdate.Equal(want.LastUpdate) {
		t.Errorf("LastUpdate = %v, want %v", got.LastUpdate, want.LastUpdate)
	}
	got.LastUpdate = want.LastUpdate
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	updated, err := Update(ctx, s, func(p *Preferences) { p.CityName = "Tacoma" })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.CityName != "Tacoma" || updated.APIKey != want.APIKey {
		t.Errorf("Update() = %+v", updated)
	}
	got, _ = s.Load(ctx)
	if got.CityName != "Tacoma" {
		t.Errorf("CityName after Update = %q, want Tacoma", got.CityName)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	storeContract(t, NewFileStore(path))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("latitude: [not a number"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("Load() error = nil for corrupt file")
	}
}

func TestFileStore_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("cityName: Boston\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CityName != "Boston" || !got.FirstLaunch {
		t.Errorf("Load() = %+v, want CityName Boston with FirstLaunch default", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	storeContract(t, s)
	if !s.Saved() {
		t.Error("Saved() = false after Save")
	}

	boom := errors.New("disk full")
	s.Err = boom
	if _, err := Update(context.Background(), s, func(*Preferences) {}); !errors.Is(err, boom) {
		t.Errorf("Update() error = %v, want %v", err, boom)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
		wantErr bool
	}{
		{"", filepath.Join(dir, "a.yaml"), false},
		{BackendFile, filepath.Join(dir, "b.yaml"), false},
		{BackendSQLite, filepath.Join(dir, "c.db"), false},
		{BackendMemory, "", false},
		{"redis", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, closeFn, err := Open(tt.backend, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Open() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer closeFn()
			if _, err := s.Load(context.Background()); err != nil {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

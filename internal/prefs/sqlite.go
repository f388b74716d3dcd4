package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// preferenceRow is the single-row table behind SQLiteStore.
type preferenceRow struct {
	ID          uint `gorm:"primaryKey"`
	Latitude    float64
	Longitude   float64
	HasLocation bool
	CityName    string
	LastUpdate  time.Time
	APIKey      string
	FirstLaunch bool
	UpdatedAt   time.Time
}

func (preferenceRow) TableName() string {
	return "preferences"
}

const rowID = 1

// SQLiteStore keeps Preferences in a SQLite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create preferences dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences database: %w", err)
	}
	if err := db.AutoMigrate(&preferenceRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate preferences database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns Defaults when no row has been saved.
func (s *SQLiteStore) Load(ctx context.Context) (Preferences, error) {
	var row preferenceRow
	err := s.db.WithContext(ctx).First(&row, rowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return Preferences{
		Latitude:    row.Latitude,
		Longitude:   row.Longitude,
		HasLocation: row.HasLocation,
		CityName:    row.CityName,
		LastUpdate:  row.LastUpdate,
		APIKey:      row.APIKey,
		FirstLaunch: row.FirstLaunch,
	}, nil
}

// Save upserts the single row.
func (s *SQLiteStore) Save(ctx context.Context, p Preferences) error {
	row := preferenceRow{
		ID:          rowID,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		HasLocation: p.HasLocation,
		CityName:    p.CityName,
		LastUpdate:  p.LastUpdate,
		APIKey:      p.APIKey,
		FirstLaunch: p.FirstLaunch,
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package models

import (
	"fmt"
	"time"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns the cache key for the position.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Condition is the first weather block of an upstream item.
type Condition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// SampleMain holds temperatures in Kelvin.
type SampleMain struct {
	Temp    float64 `json:"temp"`
	TempMin float64 `json:"tempMin"`
	TempMax float64 `json:"tempMax"`
}

// ForecastSample is one 3-hour forecast entry. Main or Condition are nil when
// the upstream item omitted them.
type ForecastSample struct {
	Timestamp string      `json:"dtTxt"`
	Main      *SampleMain `json:"main,omitempty"`
	Condition *Condition  `json:"condition,omitempty"`
}

// Forecast is one complete forecast response.
type Forecast struct {
	City    string           `json:"city"`
	Samples []ForecastSample `json:"samples"`
}

// CurrentWeather is the current conditions response. Temperatures are Kelvin.
type CurrentWeather struct {
	Name      string     `json:"name"`
	Temp      float64    `json:"temp"`
	FeelsLike float64    `json:"feelsLike"`
	Humidity  int        `json:"humidity"`
	Pressure  int        `json:"pressure"`
	WindSpeed float64    `json:"windSpeed"`
	Condition *Condition `json:"condition,omitempty"`
}

// Snapshot is everything fetched for one location in one refresh.
type Snapshot struct {
	Coordinates Coordinates     `json:"coordinates"`
	City        string          `json:"city"`
	Current     *CurrentWeather `json:"current,omitempty"`
	Forecast    Forecast        `json:"forecast"`
	FetchedAt   time.Time       `json:"fetchedAt"`
	Stale       bool            `json:"stale,omitempty"` // Served from stale cache
}

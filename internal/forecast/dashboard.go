package forecast

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

const updatedLayout = "2006-01-02 15:04:05"

// CurrentViewState is the current-conditions panel.
type CurrentViewState struct {
	Temperature string `json:"temperature"`
	FeelsLike   string `json:"feelsLike"`
	Description string `json:"description"`
	IconKey     string `json:"iconKey"`
	IconURL     string `json:"iconUrl,omitempty"`
	Humidity    string `json:"humidity"`
	Wind        string `json:"wind"`
	Pressure    string `json:"pressure"`
}

// Dashboard is everything a renderer needs for one location. It is rebuilt
// from scratch on every update.
type Dashboard struct {
	City         string            `json:"city"`
	UpdatedLabel string            `json:"updatedLabel"`
	Fresh        bool              `json:"fresh"`
	Stale        bool              `json:"stale,omitempty"`
	FetchedAt    time.Time         `json:"fetchedAt"`
	Current      *CurrentViewState `json:"current,omitempty"`
	Overall      TemperatureRange  `json:"overall"`
	Rows         []RowViewState    `json:"rows"`
	Chart        Chart             `json:"chart"`
}

// DashboardInput is a completed fetch plus the clock used to drop past samples.
// Fresh is true when the data was fetched for this build rather than read back
// from a cache.
type DashboardInput struct {
	City      string
	Current   *models.CurrentWeather
	Samples   []models.ForecastSample
	FetchedAt time.Time
	Fresh     bool
	Stale     bool
	Now       time.Time
}

// BuildDashboard filters out past samples and derives the full presentation state.
func BuildDashboard(in DashboardInput, logger *zap.Logger) Dashboard {
	samples := FilterFuture(in.Samples, in.Now)
	rows := BuildRows(samples, logger)

	d := Dashboard{
		City:         in.City,
		UpdatedLabel: UpdatedLabel(in.FetchedAt, in.Fresh),
		Fresh:        in.Fresh,
		Stale:        in.Stale,
		FetchedAt:    in.FetchedAt,
		Overall:      rows.Overall,
		Rows:         rows.Rows,
		Chart:        BuildChart(samples),
	}
	if in.Current != nil {
		d.Current = buildCurrent(in.Current)
		if d.City == "" {
			d.City = in.Current.Name
		}
	}
	if logger != nil {
		logger.Debug("dashboard built",
			zap.String("city", d.City),
			zap.Int("samples", len(samples)),
			zap.Int("dropped_past", len(in.Samples)-len(samples)),
			zap.Int("days", len(d.Rows)))
	}
	return d
}

// UpdatedLabel reads "Updated at ..." right after a fetch and "Last updated ..."
// when the data came from a cache.
func UpdatedLabel(fetchedAt time.Time, fresh bool) string {
	if fetchedAt.IsZero() {
		return "Not updated yet"
	}
	ts := fetchedAt.Format(updatedLayout)
	if fresh {
		return "Updated at " + ts
	}
	return "Last updated " + ts
}

func buildCurrent(c *models.CurrentWeather) *CurrentViewState {
	v := &CurrentViewState{
		Temperature: FormatTemperature(KelvinToCelsius(c.Temp), 1) + "°C",
		FeelsLike:   FormatTemperature(KelvinToCelsius(c.FeelsLike), 1) + "°C",
		IconKey:     IconUnknown.Key(),
		Humidity:    strconv.Itoa(c.Humidity) + "%",
		Wind:        strconv.FormatFloat(c.WindSpeed, 'g', -1, 64) + " m/s",
		Pressure:    strconv.Itoa(c.Pressure) + " hPa",
	}
	if c.Condition != nil {
		v.Description = c.Condition.Description
		v.IconKey = IconForCode(c.Condition.Icon).Key()
		v.IconURL = IconURL(c.Condition.Icon)
	}
	return v
}

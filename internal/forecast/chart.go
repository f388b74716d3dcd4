package forecast

import (
	"math"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// chartPadding is the fraction of the data span added above and below the line.
const chartPadding = 0.1

// ChartPoint is one point of the temperature line chart.
type ChartPoint struct {
	Label string  `json:"label"`
	Temp  float64 `json:"temp"`
}

// Chart is the temperature line over the forecast horizon with its axis range.
type Chart struct {
	Points []ChartPoint     `json:"points"`
	Axis   TemperatureRange `json:"axis"`
}

// BuildChart returns a point per sample with a main block and an axis padded so
// the line never touches the plot edges.
func BuildChart(samples []models.ForecastSample) Chart {
	chart := Chart{Points: make([]ChartPoint, 0, len(samples))}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		if s.Main == nil {
			continue
		}
		t := KelvinToCelsius(s.Main.Temp)
		if math.IsNaN(t) {
			continue
		}
		chart.Points = append(chart.Points, ChartPoint{Label: ClockTimeOrRaw(s.Timestamp), Temp: t})
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}

	switch {
	case len(chart.Points) == 0:
		chart.Axis = TemperatureRange{Min: DefaultRangeMin, Max: DefaultRangeMax}
	case hi > lo:
		pad := (hi - lo) * chartPadding
		chart.Axis = TemperatureRange{Min: lo - pad, Max: hi + pad}
	default:
		chart.Axis = TemperatureRange{Min: lo - 1, Max: hi + 1}
	}
	return chart
}

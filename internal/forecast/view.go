package forecast

import (
	"encoding/json"
	"math"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// missingText is shown in place of a temperature when a sample has no main block.
const missingText = "--"

// HourViewState is one forecast row inside a day. GradientStart and GradientEnd
// are Celsius and NaN when unknown; a NaN GradientStart is replaced by the
// overall minimum at render time (see GradientSpanFor).
type HourViewState struct {
	Timestamp       string
	Time            string
	Description     string
	IconKey         string
	IconURL         string
	TemperatureText string
	MinLabel        string
	MaxLabel        string
	GradientStart   float64
	GradientEnd     float64
}

// MarshalJSON encodes NaN gradient endpoints as null.
func (h HourViewState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp       string   `json:"timestamp"`
		Time            string   `json:"time"`
		Description     string   `json:"description"`
		IconKey         string   `json:"iconKey"`
		IconURL         string   `json:"iconUrl,omitempty"`
		TemperatureText string   `json:"temperatureText"`
		MinLabel        string   `json:"minLabel"`
		MaxLabel        string   `json:"maxLabel"`
		GradientStart   *float64 `json:"gradientStart"`
		GradientEnd     *float64 `json:"gradientEnd"`
	}{
		Timestamp:       h.Timestamp,
		Time:            h.Time,
		Description:     h.Description,
		IconKey:         h.IconKey,
		IconURL:         h.IconURL,
		TemperatureText: h.TemperatureText,
		MinLabel:        h.MinLabel,
		MaxLabel:        h.MaxLabel,
		GradientStart:   finiteOrNil(h.GradientStart),
		GradientEnd:     finiteOrNil(h.GradientEnd),
	})
}

// RowViewState is one day: a header plus its hourly rows.
type RowViewState struct {
	DateKey      string           `json:"dateKey"`
	Title        string           `json:"title"`
	DayRangeText string           `json:"dayRangeText"`
	DayRange     TemperatureRange `json:"dayRange"`
	Hours        []HourViewState  `json:"hours"`
}

// ForecastView is the day-grouped presentation of a forecast sequence.
type ForecastView struct {
	Overall TemperatureRange `json:"overall"`
	Rows    []RowViewState   `json:"rows"`
}

// BuildRows groups samples by day and derives each row's view state. The
// previous-sample reference for gradients is taken from samples as given, so it
// crosses day boundaries: the first hour of a day starts from the last hour of
// the day before.
func BuildRows(samples []models.ForecastSample, logger *zap.Logger) ForecastView {
	overall := OverallRange(samples)
	minLabel := "Min (" + FormatTemperature(overall.Min, 1) + ")"
	maxLabel := "Max (" + FormatTemperature(overall.Max, 1) + ")"

	buckets := GroupByDay(samples, logger)
	view := ForecastView{Overall: overall, Rows: make([]RowViewState, 0, len(buckets))}
	for _, b := range buckets {
		dayRange := DayRange(b.Samples)
		row := RowViewState{
			DateKey:      b.DateKey,
			Title:        b.DateKey,
			DayRangeText: FormatTemperature(dayRange.Min, 1) + "° / " + FormatTemperature(dayRange.Max, 1) + "°",
			DayRange:     dayRange,
			Hours:        make([]HourViewState, 0, len(b.Samples)),
		}
		if len(b.Samples) > 0 {
			row.Title = titleOrKey(b.Samples[0].Timestamp, b.DateKey)
		}
		for j, s := range b.Samples {
			h := buildHour(s, previousTemp(samples, b.Indices[j]))
			h.MinLabel, h.MaxLabel = minLabel, maxLabel
			row.Hours = append(row.Hours, h)
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func buildHour(s models.ForecastSample, prev float64) HourViewState {
	h := HourViewState{
		Timestamp:       s.Timestamp,
		Time:            ShortDateTimeOrRaw(s.Timestamp),
		IconKey:         IconUnknown.Key(),
		TemperatureText: missingText,
		GradientStart:   prev,
		GradientEnd:     math.NaN(),
	}
	if s.Condition != nil {
		h.Description = s.Condition.Description
		h.IconKey = IconForCode(s.Condition.Icon).Key()
		h.IconURL = IconURL(s.Condition.Icon)
	}
	if s.Main != nil {
		h.TemperatureText = FormatTemperature(KelvinToCelsius(s.Main.TempMin), 1) + "°C / " +
			FormatTemperature(KelvinToCelsius(s.Main.TempMax), 1) + "°C"
		h.GradientEnd = KelvinToCelsius(s.Main.Temp)
	}
	return h
}

// previousTemp is the Celsius temperature of samples[i-1], or NaN.
func previousTemp(samples []models.ForecastSample, i int) float64 {
	if i <= 0 || i > len(samples) || samples[i-1].Main == nil {
		return math.NaN()
	}
	return KelvinToCelsius(samples[i-1].Main.Temp)
}

func titleOrKey(timestamp, key string) string {
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return key
	}
	return FormatDateWithWeekday(t)
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

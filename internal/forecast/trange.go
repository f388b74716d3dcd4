package forecast

import (
	"math"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// Default range in Celsius used when no sample contributes.
const (
	DefaultRangeMin = -10.0
	DefaultRangeMax = 40.0
)

// TemperatureRange is a Celsius interval with Min <= Max.
type TemperatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Field selects which sample temperatures feed ComputeRange.
type Field int

const (
	// FieldDay takes the minimum of TempMin and the maximum of TempMax.
	FieldDay Field = iota
	FieldMin
	FieldMax
	// FieldCurrent uses Temp for both ends.
	FieldCurrent
)

func (f Field) String() string {
	switch f {
	case FieldDay:
		return "day"
	case FieldMin:
		return "min"
	case FieldMax:
		return "max"
	case FieldCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// ComputeRange scans samples and returns the Celsius range of the selected field.
// Samples without a main block and NaN readings do not contribute. With no
// contribution the default range is returned; a zero-width range is widened by 1
// on each side.
func ComputeRange(samples []models.ForecastSample, field Field) TemperatureRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	seen := false
	for _, s := range samples {
		if s.Main == nil {
			continue
		}
		low, high := fieldValues(s.Main, field)
		low, high = KelvinToCelsius(low), KelvinToCelsius(high)
		if math.IsNaN(low) || math.IsNaN(high) {
			continue
		}
		lo = math.Min(lo, low)
		hi = math.Max(hi, high)
		seen = true
	}
	return normalizeRange(lo, hi, seen)
}

// DayRange is the header range of one day: min of TempMin, max of TempMax.
func DayRange(samples []models.ForecastSample) TemperatureRange {
	return ComputeRange(samples, FieldDay)
}

// OverallRange is the range of current temperatures over the whole horizon,
// used to normalize gradients across every row.
func OverallRange(samples []models.ForecastSample) TemperatureRange {
	return ComputeRange(samples, FieldCurrent)
}

func fieldValues(m *models.SampleMain, field Field) (low, high float64) {
	switch field {
	case FieldMin:
		return m.TempMin, m.TempMin
	case FieldMax:
		return m.TempMax, m.TempMax
	case FieldCurrent:
		return m.Temp, m.Temp
	default:
		return m.TempMin, m.TempMax
	}
}

func normalizeRange(lo, hi float64, seen bool) TemperatureRange {
	if !seen {
		return TemperatureRange{Min: DefaultRangeMin, Max: DefaultRangeMax}
	}
	if lo > hi {
		// TempMin above TempMax in a malformed item.
		lo, hi = hi, lo
	}
	if lo == hi {
		return TemperatureRange{Min: lo - 1, Max: hi + 1}
	}
	return TemperatureRange{Min: lo, Max: hi}
}

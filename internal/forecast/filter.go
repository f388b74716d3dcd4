package forecast

import (
	"time"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// FilterFuture returns the samples whose timestamp is not before now, in input
// order. A sample exactly at now is kept, and so is a sample whose timestamp
// does not parse.
func FilterFuture(samples []models.ForecastSample, now time.Time) []models.ForecastSample {
	out := make([]models.ForecastSample, 0, len(samples))
	for _, s := range samples {
		ts, err := ParseTimestamp(s.Timestamp)
		if err != nil || !ts.Before(now) {
			out = append(out, s)
		}
	}
	return out
}

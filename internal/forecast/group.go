package forecast

import (
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// DayBucket groups samples sharing a calendar date. Indices holds each sample's
// position in the sequence passed to GroupByDay.
type DayBucket struct {
	DateKey string
	Samples []models.ForecastSample
	Indices []int
}

// GroupByDay partitions samples by calendar date. Buckets are ordered by the
// first appearance of their date; samples keep input order within a bucket.
// Samples with an unparseable timestamp have no date and are skipped.
func GroupByDay(samples []models.ForecastSample, logger *zap.Logger) []DayBucket {
	byKey := make(map[string]int)
	buckets := make([]DayBucket, 0)

	for i, s := range samples {
		ts, err := ParseTimestamp(s.Timestamp)
		if err != nil {
			if logger != nil {
				logger.Debug("skipping forecast sample", zap.Int("index", i), zap.Error(err))
			}
			continue
		}
		key := FormatDateKey(ts)
		pos, ok := byKey[key]
		if !ok {
			pos = len(buckets)
			byKey[key] = pos
			buckets = append(buckets, DayBucket{DateKey: key})
		}
		buckets[pos].Samples = append(buckets[pos].Samples, s)
		buckets[pos].Indices = append(buckets[pos].Indices, i)
	}
	return buckets
}

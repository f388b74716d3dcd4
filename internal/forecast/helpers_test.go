package forecast

import "github.com/kjstillabower/weather-forecast-display/internal/models"

// sample builds a forecast sample from Celsius readings.
func sample(ts string, temp, tempMin, tempMax float64) models.ForecastSample {
	return models.ForecastSample{
		Timestamp: ts,
		Main: &models.SampleMain{
			Temp:    temp + KelvinOffset,
			TempMin: tempMin + KelvinOffset,
			TempMax: tempMax + KelvinOffset,
		},
		Condition: &models.Condition{Description: "light rain", Icon: "10d"},
	}
}

func timestamps(samples []models.ForecastSample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}

package forecast

import "math"

// GradientSpan is the filled part of a temperature bar, as fractions of the
// overall range. From <= To. Rising is false when the temperature fell from the
// previous sample, in which case renderers reverse the color direction.
type GradientSpan struct {
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Rising bool    `json:"rising"`
}

// GradientSpanFor places the start and end temperatures on the overall range.
// A NaN start means there is no previous sample and the overall minimum is used.
// A NaN end yields an empty span at the start position.
func GradientSpanFor(start, end float64, overall TemperatureRange) GradientSpan {
	if math.IsNaN(start) {
		start = overall.Min
	}
	if math.IsNaN(end) {
		end = start
	}
	s := position(clamp(start, overall.Min, overall.Max), overall)
	e := position(clamp(end, overall.Min, overall.Max), overall)
	span := GradientSpan{From: s, To: e, Rising: end >= start}
	if span.From > span.To {
		span.From, span.To = span.To, span.From
	}
	return span
}

func position(t float64, r TemperatureRange) float64 {
	width := r.Max - r.Min
	if width <= 0 {
		return 0
	}
	return (t - r.Min) / width
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

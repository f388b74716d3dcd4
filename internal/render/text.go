// Package render draws a dashboard as plain text for terminals.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kjstillabower/weather-forecast-display/internal/forecast"
)

// DefaultBarWidth is the number of cells in a temperature bar.
const DefaultBarWidth = 24

const (
	cellEmpty   = '·'
	cellRising  = '▲'
	cellFalling = '▼'
)

// Text renders dashboards line by line.
type Text struct {
	BarWidth int
}

// NewText returns a renderer with the default bar width.
func NewText() *Text {
	return &Text{BarWidth: DefaultBarWidth}
}

// Render writes d to w.
func (t *Text) Render(w io.Writer, d *forecast.Dashboard) error {
	if d == nil {
		_, err := fmt.Fprintln(w, "No forecast yet.")
		return err
	}
	width := t.BarWidth
	if width <= 0 {
		width = DefaultBarWidth
	}

	var b strings.Builder
	city := d.City
	if city == "" {
		city = "Unknown location"
	}
	b.WriteString(city)
	if d.Stale {
		b.WriteString(" (stale)")
	}
	b.WriteByte('\n')
	b.WriteString(d.UpdatedLabel)
	b.WriteByte('\n')

	if c := d.Current; c != nil {
		fmt.Fprintf(&b, "\nNow %s, feels like %s", c.Temperature, c.FeelsLike)
		if c.Description != "" {
			fmt.Fprintf(&b, ", %s", c.Description)
		}
		fmt.Fprintf(&b, "\nHumidity %s  Wind %s  Pressure %s\n", c.Humidity, c.Wind, c.Pressure)
	}

	if len(d.Rows) == 0 {
		b.WriteString("\nNo upcoming forecast samples.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, row := range d.Rows {
		fmt.Fprintf(&b, "\n%s  %s\n", row.Title, row.DayRangeText)
		for _, h := range row.Hours {
			span := forecast.GradientSpanFor(h.GradientStart, h.GradientEnd, d.Overall)
			fmt.Fprintf(&b, "  %-11s %-20s %s  %s\n", h.Time, h.TemperatureText, Bar(span, width), h.Description)
		}
	}
	b.WriteString(axis(d.Overall, width))
	_, err := io.WriteString(w, b.String())
	return err
}

// Bar draws span across width cells. Filled cells point up when the
// temperature rose from the previous sample and down when it fell. An empty
// span still marks one cell so the position stays visible.
func Bar(span forecast.GradientSpan, width int) string {
	if width <= 0 {
		return ""
	}
	from := cellIndex(span.From, width)
	to := cellIndex(span.To, width)
	fill := cellFalling
	if span.Rising {
		fill = cellRising
	}
	cells := make([]rune, width)
	for i := range cells {
		cells[i] = cellEmpty
		if i >= from && i <= to {
			cells[i] = fill
		}
	}
	return "[" + string(cells) + "]"
}

func cellIndex(frac float64, width int) int {
	if math.IsNaN(frac) {
		return 0
	}
	i := int(math.Round(frac * float64(width-1)))
	if i < 0 {
		return 0
	}
	if i > width-1 {
		return width - 1
	}
	return i
}

// axis labels the bar column with the overall minimum and maximum.
func axis(r forecast.TemperatureRange, width int) string {
	lo := forecast.FormatTemperature(r.Min, 0) + "°"
	hi := forecast.FormatTemperature(r.Max, 0) + "°"
	gap := width + 2 - len([]rune(lo)) - len([]rune(hi))
	if gap < 1 {
		gap = 1
	}
	return fmt.Sprintf("\n  %-11s %-20s %s%s%s\n", "", "", lo, strings.Repeat(" ", gap), hi)
}

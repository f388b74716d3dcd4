package traffic

import "time"

// Status values reported by Evaluate.
const (
	StatusHealthy    = "healthy"
	StatusOverloaded = "overloaded"
	StatusIdle       = "idle"
	StatusDegraded   = "degraded"
)

// Thresholds configures Evaluate. Zero windows disable the matching check.
type Thresholds struct {
	// OverloadWindow and OverloadRequests: overloaded when more than
	// OverloadRequests outcomes fall within the window.
	OverloadWindow   time.Duration
	OverloadRequests int

	// IdleWindow and IdleRequestsPerMin: idle when fewer requests per minute
	// arrive, checked only after MinimumLifespan of uptime.
	IdleWindow         time.Duration
	IdleRequestsPerMin int
	MinimumLifespan    time.Duration

	// DegradedWindow and DegradedErrorPct: degraded when the error share of
	// served requests reaches the percentage.
	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// OverloadRequestsFor derives the overload threshold from the rate limit:
// pct percent of rps sustained over window.
func OverloadRequestsFor(rps, pct int, window time.Duration) int {
	return int(float64(rps) * window.Seconds() * float64(pct) / 100)
}

// Condition is the traffic-derived health verdict.
type Condition struct {
	Status string
	Reason string
}

// Evaluate checks overload, then idle, then error rate.
func (t *Tracker) Evaluate(th Thresholds, uptime time.Duration) Condition {
	if th.OverloadWindow > 0 && th.OverloadRequests > 0 &&
		t.RequestCount(th.OverloadWindow) > th.OverloadRequests {
		return Condition{StatusOverloaded, "overload_threshold"}
	}
	if th.IdleWindow > 0 && th.IdleRequestsPerMin > 0 && uptime >= th.MinimumLifespan {
		perMin := float64(t.RequestCount(th.IdleWindow)) / th.IdleWindow.Minutes()
		if perMin < float64(th.IdleRequestsPerMin) {
			return Condition{StatusIdle, "low_traffic"}
		}
	}
	if th.DegradedWindow > 0 && th.DegradedErrorPct > 0 {
		errs, total := t.ErrorRate(th.DegradedWindow)
		if total > 0 && errs*100 >= th.DegradedErrorPct*total {
			return Condition{StatusDegraded, "error_rate_breach"}
		}
	}
	return Condition{StatusHealthy, ""}
}

// Package window computes the retention window used to filter programmes.
package window

import "time"

const day = 24 * time.Hour

// Window is the closed interval [Start, End] in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns [now - pastDays, now + futureDays]. It is computed once per run
// so every filtering decision in the run uses the same bounds.
func New(now time.Time, pastDays, futureDays int) Window {
	now = now.UTC()
	return Window{
		Start: now.Add(-time.Duration(pastDays) * day),
		End:   now.Add(time.Duration(futureDays) * day),
	}
}

// Intersects reports whether a programme running from start to stop overlaps
// the window. A nil bound is unknown: with both unknown the programme is kept,
// with one unknown the known bound alone decides.
func (w Window) Intersects(start, stop *time.Time) bool {
	switch {
	case start == nil && stop == nil:
		return true
	case start == nil:
		return !stop.Before(w.Start)
	case stop == nil:
		return !start.After(w.End)
	default:
		return !start.After(w.End) && !stop.Before(w.Start)
	}
}

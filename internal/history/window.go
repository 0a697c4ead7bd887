package history

import "time"

// Window is a lookback date range. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// ResolveWindow computes the lookback interval for an episode:
// [start − lookbackDays, start − 1 day]. A record overlapping any part of
// the window matches; the episode's own start date is always outside it.
func ResolveWindow(start time.Time, lookbackDays int) Window {
	return Window{
		Start: start.AddDate(0, 0, -lookbackDays),
		End:   start.AddDate(0, 0, -1),
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

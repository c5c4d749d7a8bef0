package weather

import "time"

// Midnight truncates t to the start of its calendar day in tz.
func Midnight(t time.Time, tz *time.Location) time.Time {
	y, m, d := t.In(tz).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tz)
}

func MidnightTimestamp(t time.Time, tz *time.Location) int64 {
	return Midnight(t, tz).Unix()
}

func SameDay(a, b time.Time, tz *time.Location) bool {
	ay, am, ad := a.In(tz).Date()
	by, bm, bd := b.In(tz).Date()
	return ay == by && am == bm && ad == bd
}

// GenerateWindow returns the DaysPerWeek day starts beginning at today's
// midnight in tz, each SecondsPerDay apart.
func GenerateWindow(now time.Time, tz *time.Location) []int64 {
	start := MidnightTimestamp(now, tz)
	window := make([]int64, DaysPerWeek)
	for i := range window {
		window[i] = start + int64(i)*SecondsPerDay
	}
	return window
}

// NeedsRefresh reports whether data fetched at lastFetch should be refetched
// at now. Crossing a local midnight counts as stale even inside interval.
func NeedsRefresh(lastFetch, now time.Time, tz *time.Location, interval time.Duration) bool {
	return now.Sub(lastFetch) >= interval || !SameDay(now, lastFetch, tz)
}

package weather

import "maps"

// dayCache holds at most one record per day start. It is only touched from
// the manager's loop goroutine.
type dayCache struct {
	m map[int64]DayWeather
}

func newDayCache() *dayCache {
	return &dayCache{m: make(map[int64]DayWeather)}
}

func (c *dayCache) Len() int {
	return len(c.m)
}

func (c *dayCache) Clear() {
	clear(c.m)
}

// MergeMissing inserts records for window days that have no entry yet.
// Existing entries are never overwritten. Returns the number inserted.
func (c *dayCache) MergeMissing(records []DayWeather, window []int64) int {
	inWindow := windowSet(window)
	added := 0
	for _, r := range records {
		if _, ok := inWindow[r.Timestamp]; !ok {
			continue
		}
		if _, exists := c.m[r.Timestamp]; exists {
			continue
		}
		c.m[r.Timestamp] = r
		added++
	}
	return added
}

// Replace discards every entry and keeps exactly the records inside window.
func (c *dayCache) Replace(records []DayWeather, window []int64) {
	inWindow := windowSet(window)
	next := make(map[int64]DayWeather, len(window))
	for _, r := range records {
		if _, ok := inWindow[r.Timestamp]; ok {
			next[r.Timestamp] = r
		}
	}
	c.m = next
}

func (c *dayCache) Snapshot() map[int64]DayWeather {
	return maps.Clone(c.m)
}

func windowSet(window []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(window))
	for _, ts := range window {
		set[ts] = struct{}{}
	}
	return set
}

package weather

import "testing"

func ptr[T any](v T) *T { return &v }

func TestDayCache_MergeMissingKeepsExisting(t *testing.T) {
	window := []int64{100, 200, 300}
	c := newDayCache()
	c.Replace([]DayWeather{{Timestamp: 100, Symbol: ptr("server")}}, window)

	added := c.MergeMissing([]DayWeather{
		{Timestamp: 100, Symbol: ptr("store")},
		{Timestamp: 200, Symbol: ptr("store")},
	}, window)

	if added != 1 {
		t.Fatalf("expected 1 record added, got %d", added)
	}
	snap := c.Snapshot()
	got, ok := snap[100]
	if !ok || *got.Symbol != "server" {
		t.Errorf("expected existing entry to be kept, got %+v", got)
	}
	got, ok = snap[200]
	if !ok || *got.Symbol != "store" {
		t.Errorf("expected missing entry to be filled, got %+v", got)
	}
}

func TestDayCache_MergeMissingDropsOutsideWindow(t *testing.T) {
	c := newDayCache()
	added := c.MergeMissing([]DayWeather{{Timestamp: 999}}, []int64{100})
	if added != 0 || c.Len() != 0 {
		t.Fatalf("expected nothing merged, got added=%d len=%d", added, c.Len())
	}
}

func TestDayCache_ReplaceOverwritesAndPurges(t *testing.T) {
	c := newDayCache()
	c.MergeMissing([]DayWeather{
		{Timestamp: 100, Symbol: ptr("store")},
		{Timestamp: 200, Symbol: ptr("store")},
	}, []int64{100, 200})

	c.Replace([]DayWeather{
		{Timestamp: 200, Symbol: ptr("server")},
		{Timestamp: 300, Symbol: ptr("server")},
	}, []int64{200, 300})

	snap := c.Snapshot()
	if _, ok := snap[100]; ok {
		t.Error("expected entry outside new window to be purged")
	}
	got := snap[200]
	if *got.Symbol != "server" {
		t.Errorf("expected server record to replace store record, got %q", *got.Symbol)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestDayCache_SnapshotIsDetached(t *testing.T) {
	c := newDayCache()
	c.MergeMissing([]DayWeather{{Timestamp: 100}}, []int64{100})
	snap := c.Snapshot()
	c.Clear()
	if len(snap) != 1 {
		t.Fatalf("expected snapshot to survive Clear, got %d entries", len(snap))
	}
}

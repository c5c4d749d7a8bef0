package weather

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"
)

type LocalStore interface {
	ReadDailyWeather(ctx context.Context, loc Coordinates, timestamps []int64) ([]DayWeather, time.Time, error)
	WriteDailyWeather(ctx context.Context, loc Coordinates, records []DayWeather, fetchDate time.Time) error
}

// RemoteService returns forecasts for the window of wctx. Nil slots mark
// days without a forecast.
type RemoteService interface {
	FetchDailyWeather(ctx context.Context, wctx Context) ([]*DayWeather, error)
}

const DefaultRefreshInterval = time.Hour

type Option func(*DailyManager)

func WithClock(now func() time.Time) Option {
	return func(m *DailyManager) { m.now = now }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *DailyManager) { m.refreshInterval = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *DailyManager) { m.logger = logger }
}

// snapshot is the read-only view published after every mutation.
type snapshot struct {
	ctx        Context
	timestamps []int64
	days       map[int64]DayWeather
	lastFetch  time.Time
}

// DailyManager keeps the 7-day window for one context. All state below the
// view field is owned by the loop goroutine.
type DailyManager struct {
	loop            *Loop
	store           LocalStore
	remote          RemoteService
	listeners       *Listeners
	logger          *slog.Logger
	now             func() time.Time
	refreshInterval time.Duration

	view atomic.Pointer[snapshot]

	ctx        Context
	timestamps []int64
	days       *dayCache
	lastFetch  time.Time
}

// NewDailyManager builds the manager and schedules the initial reload on
// loop. Listeners subscribed before the loop starts see the first clear.
func NewDailyManager(loop *Loop, wctx Context, store LocalStore, remote RemoteService, opts ...Option) *DailyManager {
	if wctx.Timezone == nil {
		wctx.Timezone = time.UTC
	}
	m := &DailyManager{
		loop:            loop,
		store:           store,
		remote:          remote,
		listeners:       NewListeners(),
		logger:          slog.Default(),
		now:             time.Now,
		refreshInterval: DefaultRefreshInterval,
		ctx:             wctx,
		days:            newDayCache(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "daily-weather")
	m.timestamps = GenerateWindow(m.now(), wctx.Timezone)
	m.lastFetch = m.now()
	m.publish()

	loop.Post(m.reload)
	return m
}

func (m *DailyManager) Listeners() *Listeners {
	return m.listeners
}

func (m *DailyManager) Context() Context {
	return m.view.Load().ctx
}

func (m *DailyManager) Location() Coordinates {
	return m.view.Load().ctx.Location
}

func (m *DailyManager) Timezone() *time.Location {
	return m.view.Load().ctx.Timezone
}

// Timestamps returns the current window in ascending order.
func (m *DailyManager) Timestamps() []int64 {
	return slices.Clone(m.view.Load().timestamps)
}

func (m *DailyManager) DayWeather(timestamp int64) (DayWeather, bool) {
	d, ok := m.view.Load().days[timestamp]
	return d, ok
}

func (m *DailyManager) LastFetch() time.Time {
	return m.view.Load().lastFetch
}

// View is one consistent read of the manager. The context, window and days
// all come from the same published state.
type View struct {
	Context    Context
	Timestamps []int64
	LastFetch  time.Time

	days map[int64]DayWeather
}

func (v View) DayWeather(timestamp int64) (DayWeather, bool) {
	d, ok := v.days[timestamp]
	return d, ok
}

func (m *DailyManager) View() View {
	s := m.view.Load()
	return View{
		Context:    s.ctx,
		Timestamps: slices.Clone(s.timestamps),
		LastFetch:  s.lastFetch,
		days:       s.days,
	}
}

func (m *DailyManager) HourlyContext(timestamp int64) HourlyContext {
	v := m.view.Load()
	return HourlyContext{
		Location:  v.ctx.Location,
		Timezone:  v.ctx.Timezone,
		Timestamp: timestamp,
	}
}

// SetLocation switches to loc, keeping the timezone, and reloads.
func (m *DailyManager) SetLocation(loc Coordinates) {
	m.loop.Post(func() {
		m.ctx.Location = loc
		m.reload()
	})
}

// RefetchDataIfNeeded starts a remote fetch when the cache is stale.
// Calls made while a fetch is in flight are no-ops.
func (m *DailyManager) RefetchDataIfNeeded() {
	m.loop.Post(m.refetchIfNeeded)
}

func (m *DailyManager) reload() {
	m.lastFetch = m.now()
	m.timestamps = GenerateWindow(m.lastFetch, m.ctx.Timezone)
	m.days.Clear()
	m.publish()
	m.listeners.Notify()

	m.fetchFromStore()
}

func (m *DailyManager) refetchIfNeeded() {
	if !NeedsRefresh(m.lastFetch, m.now(), m.ctx.Timezone, m.refreshInterval) {
		return
	}
	m.fetchFromServer()
}

func (m *DailyManager) fetchFromStore() {
	wctx := m.ctx
	timestamps := slices.Clone(m.timestamps)

	m.loop.Go(func(ctx context.Context) func() {
		records, fetchDate, err := m.store.ReadDailyWeather(ctx, wctx.Location, timestamps)
		return func() {
			if !m.ctx.Equal(wctx) {
				m.logger.Debug("discarding store result for previous context",
					"lat", wctx.Location.Latitude, "lon", wctx.Location.Longitude)
				return
			}
			if err != nil {
				m.logger.Warn("failed to read daily weather from store", "err", err,
					"lat", wctx.Location.Latitude, "lon", wctx.Location.Longitude)
				records, fetchDate = nil, time.Time{}
			}

			m.lastFetch = fetchDate
			// An empty read skips the notification: the reload already
			// announced the cleared cache.
			if len(records) > 0 {
				added := m.days.MergeMissing(records, m.timestamps)
				m.logger.Debug("merged store records", "returned", len(records), "added", added)
				m.publish()
				m.listeners.Notify()
			} else {
				m.publish()
			}
			m.refetchIfNeeded()
		}
	})
}

func (m *DailyManager) fetchFromServer() {
	m.lastFetch = m.now()
	m.publish()
	wctx := m.ctx

	m.loop.Go(func(ctx context.Context) func() {
		start := time.Now()
		slots, err := m.remote.FetchDailyWeather(ctx, wctx)
		return func() {
			if !m.ctx.Equal(wctx) {
				m.logger.Debug("discarding remote result for previous context",
					"lat", wctx.Location.Latitude, "lon", wctx.Location.Longitude)
				return
			}
			if err != nil {
				m.lastFetch = m.now().Add(-m.refreshInterval)
				m.publish()
				m.logger.Error("failed to fetch daily weather", "err", err,
					"lat", wctx.Location.Latitude, "lon", wctx.Location.Longitude,
					"timezone", timezoneName(wctx.Timezone))
				return
			}

			records := compact(slots)
			m.timestamps = GenerateWindow(m.now(), m.ctx.Timezone)
			m.days.Replace(records, m.timestamps)
			m.lastFetch = m.now()
			m.publish()
			m.listeners.Notify()
			m.logger.Info("daily weather fetched",
				"records", len(records),
				"cached", m.days.Len(),
				"duration", time.Since(start),
			)

			m.persist(wctx.Location, records, m.lastFetch)
		}
	})
}

func (m *DailyManager) persist(loc Coordinates, records []DayWeather, fetchDate time.Time) {
	if len(records) == 0 {
		return
	}
	m.loop.Go(func(ctx context.Context) func() {
		if err := m.store.WriteDailyWeather(ctx, loc, records, fetchDate); err != nil {
			m.logger.Warn("failed to store daily weather", "err", err,
				"lat", loc.Latitude, "lon", loc.Longitude)
		}
		return nil
	})
}

func (m *DailyManager) publish() {
	m.view.Store(&snapshot{
		ctx:        m.ctx,
		timestamps: slices.Clone(m.timestamps),
		days:       m.days.Snapshot(),
		lastFetch:  m.lastFetch,
	})
}

func compact(slots []*DayWeather) []DayWeather {
	records := make([]DayWeather, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			records = append(records, *s)
		}
	}
	return records
}

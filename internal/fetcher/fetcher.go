package fetcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Refetcher is the manager operation the fetcher drives.
type Refetcher interface {
	RefetchDataIfNeeded()
}

// Fetcher periodically asks the manager to refetch. The manager decides
// whether the cache is actually stale.
type Fetcher struct {
	scheduler *gocron.Scheduler
	target    Refetcher
	interval  time.Duration
}

func New(target Refetcher, interval time.Duration) *Fetcher {
	return &Fetcher{
		scheduler: gocron.NewScheduler(time.UTC),
		target:    target,
		interval:  interval,
	}
}

// Start runs the first check immediately and then every interval.
func (f *Fetcher) Start() error {
	if f.interval <= 0 {
		return fmt.Errorf("refresh check interval must be positive, got %s", f.interval)
	}

	_, err := f.scheduler.Every(f.interval).SingletonMode().Do(func() {
		slog.Debug("refresh check")
		f.target.RefetchDataIfNeeded()
	})
	if err != nil {
		return fmt.Errorf("schedule refresh check: %w", err)
	}

	f.scheduler.StartAsync()
	slog.Info("refresh checker starting", "interval", f.interval)
	return nil
}

func (f *Fetcher) Stop() {
	f.scheduler.Stop()
	slog.Info("refresh checker stopped")
}

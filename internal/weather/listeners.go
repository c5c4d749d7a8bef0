package weather

import (
	"sync"
	"weak"
)

// Listener is told that cached data may have changed. Implementations read
// the new state back through the manager's accessors.
type Listener interface {
	DailyWeatherChanged()
}

// Listeners is a set of weakly held listeners keyed by pointer identity.
// A listener that is no longer referenced elsewhere is dropped on the next
// Notify.
type Listeners struct {
	mu      sync.Mutex
	entries map[any]func() Listener
}

func NewListeners() *Listeners {
	return &Listeners{entries: make(map[any]func() Listener)}
}

// Subscribe adds l to the set. Subscribing the same pointer twice is a no-op.
func Subscribe[T any, P interface {
	*T
	Listener
}](ls *Listeners, l P) {
	wp := weak.Make((*T)(l))
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.entries[wp] = func() Listener {
		if v := wp.Value(); v != nil {
			return P(v)
		}
		return nil
	}
}

func Unsubscribe[T any, P interface {
	*T
	Listener
}](ls *Listeners, l P) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.entries, weak.Make((*T)(l)))
}

// Notify calls DailyWeatherChanged on every live listener. Callbacks run
// after the lock is released so they may subscribe or unsubscribe.
func (ls *Listeners) Notify() {
	ls.mu.Lock()
	live := make([]Listener, 0, len(ls.entries))
	for key, resolve := range ls.entries {
		l := resolve()
		if l == nil {
			delete(ls.entries, key)
			continue
		}
		live = append(live, l)
	}
	ls.mu.Unlock()

	for _, l := range live {
		l.DailyWeatherChanged()
	}
}

func (ls *Listeners) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.entries)
}

package weather

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time on a single goroutine. Blocking work
// is started with Go and its completion re-enters the loop as a task.
type Loop struct {
	ctx  context.Context
	wake chan struct{}

	mu      sync.Mutex
	queue   []func()
	pending int
	idle    chan struct{}
}

func NewLoop(ctx context.Context) *Loop {
	idle := make(chan struct{})
	close(idle)
	return &Loop{
		ctx:  ctx,
		wake: make(chan struct{}, 1),
		idle: idle,
	}
}

// Post enqueues fn. It never blocks and is safe from any goroutine,
// including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.acquireLocked()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs work on its own goroutine with the loop's context. A non-nil
// completion returned by work is posted back to the loop.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.mu.Lock()
	l.acquireLocked()
	l.mu.Unlock()

	go func() {
		defer l.release()
		if done := work(l.ctx); done != nil {
			l.Post(done)
		}
	}()
}

// Run drains the queue until the loop's context is cancelled.
func (l *Loop) Run() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			fn()
			l.release()
		}
	}
}

// Settle blocks until no tasks are queued and no Go work is in flight.
func (l *Loop) Settle(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) acquireLocked() {
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
}

func (l *Loop) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}

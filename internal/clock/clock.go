// Package clock provides the countdown primitive used by quiz sessions.
// Every subscription returns a Cancel that the owner must hold and release.
package clock

import (
	"sync"
	"time"
)

// Cancel releases a tick subscription. Calling it more than once is safe.
type Cancel func()

// Clock reports the current time and delivers periodic ticks.
type Clock interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Cancel
}

// Real is a Clock backed by time.Ticker.
type Real struct{}

func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) Every(interval time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// Manual is a deterministic Clock for tests and replay. Ticks fire
// synchronously from Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	subs   map[int]*manualSub
}

type manualSub struct {
	interval time.Duration
	next     time.Time
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, subs: make(map[int]*manualSub)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(interval time.Duration, fn func()) Cancel {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = &manualSub{interval: interval, next: m.now.Add(interval), fn: fn}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Active returns the number of live subscriptions.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Advance moves time forward by d, firing every due tick in order.
// Subscriptions cancelled by a callback stop firing immediately.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var (
			due   *manualSub
			dueID int
		)
		for id, sub := range m.subs {
			if sub.next.After(target) {
				continue
			}
			if due == nil || sub.next.Before(due.next) || (sub.next.Equal(due.next) && id < dueID) {
				due, dueID = sub, id
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

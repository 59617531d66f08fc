package events

import (
	"sync"
	"time"
)

// Kind names an event. Components declare the kinds they publish and consume.
type Kind string

const (
	ConnectivityChanged Kind = "connectivity.changed"
	QuizTick            Kind = "quiz.tick"
	QuizSubmitted       Kind = "quiz.submitted"
	AchievementUnlocked Kind = "achievement.unlocked"
	LessonUpdated       Kind = "lesson.updated"
	StorageDegraded     Kind = "storage.degraded"
	SyncStarted         Kind = "sync.started"
	SyncCompleted       Kind = "sync.completed"
	SyncFailed          Kind = "sync.failed"
)

// Event is a notification with an optional payload.
type Event struct {
	Kind    Kind      `json:"kind"`
	Key     string    `json:"key,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher is what emitting components depend on.
type Publisher interface {
	Publish(Event)
}

// Subscriber is what consuming components depend on.
type Subscriber interface {
	Subscribe(kinds ...Kind) (<-chan Event, func())
}

// Bus fans events out to subscribers. Slow subscribers lose their oldest
// pending event rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]map[Kind]struct{}
	now  func() time.Time
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[chan Event]map[Kind]struct{}),
		now:  time.Now,
	}
}

// Subscribe returns a channel receiving the given kinds (all kinds when none
// are given). The caller must invoke the returned cancel function to avoid leaks.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	filter := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		filter[k] = struct{}{}
	}

	b.mu.Lock()
	b.subs[ch] = filter
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	// Write lock: the drop-oldest path receives from subscriber channels.
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, filter := range b.subs {
		if len(filter) > 0 {
			if _, ok := filter[ev.Kind]; !ok {
				continue
			}
		}
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Discard drops every event. Useful when a component runs without listeners.
type Discard struct{}

func (Discard) Publish(Event) {}

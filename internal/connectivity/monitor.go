// Package connectivity tracks the online/offline signal and the bandwidth
// class used to pick media variants.
package connectivity

import (
	"log"
	"strings"
	"sync"

	"eduquest-progress/internal/events"
)

// Bandwidth is the effective bandwidth class reported by the shell.
type Bandwidth string

const (
	BandwidthHigh   Bandwidth = "high"
	BandwidthMedium Bandwidth = "medium"
	BandwidthLow    Bandwidth = "low"
)

// ClassFromEffectiveType maps a network effective type (4g, 3g, 2g,
// slow-2g) to a bandwidth class.
func ClassFromEffectiveType(effectiveType string) Bandwidth {
	switch strings.ToLower(strings.TrimSpace(effectiveType)) {
	case "4g":
		return BandwidthHigh
	case "3g":
		return BandwidthMedium
	}
	return BandwidthLow
}

// State is published with connectivity.changed.
type State struct {
	Online    bool      `json:"online"`
	Bandwidth Bandwidth `json:"bandwidth"`
}

// Monitor holds the latest connectivity signal.
type Monitor struct {
	events events.Publisher

	mu    sync.RWMutex
	state State
}

func NewMonitor(online bool, pub events.Publisher) *Monitor {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Monitor{events: pub, state: State{Online: online, Bandwidth: BandwidthHigh}}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Online
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetOnline records the binary signal and publishes a change event.
func (m *Monitor) SetOnline(online bool) {
	m.update(func(s *State) { s.Online = online })
}

// SetEffectiveType records the bandwidth class derived from effectiveType.
func (m *Monitor) SetEffectiveType(effectiveType string) {
	m.SetBandwidth(ClassFromEffectiveType(effectiveType))
}

func (m *Monitor) SetBandwidth(b Bandwidth) {
	m.update(func(s *State) { s.Bandwidth = b })
}

func (m *Monitor) update(fn func(*State)) {
	m.mu.Lock()
	prev := m.state
	fn(&m.state)
	next := m.state
	m.mu.Unlock()

	if prev == next {
		return
	}
	if prev.Online != next.Online {
		log.Printf("[connectivity] online=%v", next.Online)
	}
	m.events.Publish(events.Event{Kind: events.ConnectivityChanged, Payload: next})
}

// MediaSource is a content URL with optional per-bandwidth variants.
type MediaSource struct {
	Default  string               `json:"default"`
	Variants map[Bandwidth]string `json:"variants,omitempty"`
}

// MediaVariant picks the variant for the bandwidth class, falling back to the
// default source.
func MediaVariant(src MediaSource, b Bandwidth) string {
	if v, ok := src.Variants[b]; ok && v != "" {
		return v
	}
	return src.Default
}

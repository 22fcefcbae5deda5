// Package journal persists the engine's event stream so every share mint,
// burn and cycle settlement stays auditable after the process exits.
package journal

import (
	"context"
	"sync"
	"time"

	"liquidity-engine/engine"
)

// Journaler is the event sink. Implementations must keep events in arrival
// order.
type Journaler interface {
	Record(ctx context.Context, ev engine.Event) error
	Events(ctx context.Context, eventType engine.EventType, start, end time.Time) ([]engine.Event, error)
	Close() error
}

// Memory is an append-only in-process journal, used in tests and in the
// simulator where persistence is not wanted.
type Memory struct {
	mu     sync.RWMutex
	events []engine.Event
}

// NewMemory returns an empty journal.
func NewMemory() *Memory {
	return &Memory{events: make([]engine.Event, 0, 256)}
}

// Record implements Journaler.
func (m *Memory) Record(_ context.Context, ev engine.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events implements Journaler. A zero eventType matches every type; zero
// start/end bounds are open.
func (m *Memory) Events(_ context.Context, eventType engine.EventType, start, end time.Time) ([]engine.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Event
	for _, ev := range m.events {
		if eventType != "" && ev.Type != eventType {
			continue
		}
		if !start.IsZero() && ev.Time.Before(start) {
			continue
		}
		if !end.IsZero() && ev.Time.After(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close implements Journaler.
func (m *Memory) Close() error { return nil }

// Len returns the number of recorded events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

package stream

import (
	"sync"

	"liquidity-engine/engine"
)

type subscription struct {
	ch chan engine.Event
}

// hub fans engine events out to websocket sessions. Broadcast never blocks:
// a session that falls behind drops events.
type hub struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) subscribe(buffer int) *subscription {
	sub := &subscription{ch: make(chan engine.Event, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	close(sub.ch)
}

func (h *hub) broadcast(ev engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

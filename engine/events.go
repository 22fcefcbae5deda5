package engine

import (
	"sync"
	"time"

	"liquidity-engine/market"
)

// EventType tags an engine event.
type EventType string

const (
	EventCycle         EventType = "cycle"
	EventManualCollect EventType = "manual_collect"
	EventParams        EventType = "params"
	EventPaused        EventType = "paused"
	EventUnpaused      EventType = "unpaused"
	EventSharesMinted  EventType = "shares_minted"
	EventSharesBurned  EventType = "shares_burned"
)

// CycleReport carries the exact amounts a cycle moved and the quote it
// rested.
type CycleReport struct {
	BidLimit       market.PriceLimit `json:"bidLimit"`
	AskLimit       market.PriceLimit `json:"askLimit"`
	CollectedBase  market.Amount     `json:"collectedBase"`
	CollectedQuote market.Amount     `json:"collectedQuote"`
	PlacedBid      bool              `json:"placedBid"`
	PlacedAsk      bool              `json:"placedAsk"`
	Reserves       market.Reserves   `json:"reserves"`
}

// ShareTransfer reports a mint or burn with the asset amounts that moved.
type ShareTransfer struct {
	Holder string        `json:"holder"`
	Shares uint64        `json:"shares"`
	Base   market.Amount `json:"base"`
	Quote  market.Amount `json:"quote"`
}

// ParamsChange reports a parameter update, values rendered as decimal
// strings.
type ParamsChange struct {
	RiskAversion     string `json:"riskAversion"`
	VolatilitySq     string `json:"volatilitySq"`
	ArrivalIntensity string `json:"arrivalIntensity"`
	TargetRatio      string `json:"targetRatio"`
}

// Event is one observable engine mutation.
type Event struct {
	Type   EventType      `json:"type"`
	Time   time.Time      `json:"time"`
	Cycle  *CycleReport   `json:"cycle,omitempty"`
	Shares *ShareTransfer `json:"shares,omitempty"`
	Params *ParamsChange  `json:"params,omitempty"`
}

// Publisher fans events out to subscribers. Delivery is non-blocking: a
// subscriber that falls behind drops events rather than stalling the engine.
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers a buffered event channel.
func (p *Publisher) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish delivers to every subscriber with room.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

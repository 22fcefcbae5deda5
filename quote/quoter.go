// Package quote turns market and inventory state into one bid/ask limit pair
// per cycle. Three variants share the same order lifecycle downstream: a
// fixed discrete quote, an oracle-replicating quote, and the full pricing
// model.
package quote

import (
	"errors"
	"fmt"
	"sync"

	"liquidity-engine/fixed"
	"liquidity-engine/market"
	"liquidity-engine/pricing"
)

var (
	ErrCrossedQuote  = errors.New("quote: bid limit at or above ask limit")
	ErrNoParamUpdate = errors.New("quote: strategy takes no parameters")
)

// InventoryState is the per-cycle input: current market price, batch width,
// and the reserve-derived holdings.
type InventoryState struct {
	CurrPrice fixed.Fixed
	Width     fixed.Fixed
	Base      fixed.Fixed
	Quote     fixed.Fixed
}

// Quoter computes the target limit pair for one cycle.
type Quoter interface {
	Quote(state InventoryState) (bid, ask market.PriceLimit, err error)
}

// ParamSetter is implemented by quoters with tunable parameters.
type ParamSetter interface {
	SetParameters(p pricing.Params) error
}

// Fixed quotes constant limits regardless of state.
type Fixed struct {
	Bid market.PriceLimit
	Ask market.PriceLimit
}

// NewFixed validates the pair once up front.
func NewFixed(bid, ask market.PriceLimit) (*Fixed, error) {
	if bid >= ask {
		return nil, fmt.Errorf("%w: %d >= %d", ErrCrossedQuote, bid, ask)
	}
	return &Fixed{Bid: bid, Ask: ask}, nil
}

// Quote implements Quoter.
func (f *Fixed) Quote(InventoryState) (market.PriceLimit, market.PriceLimit, error) {
	return f.Bid, f.Ask, nil
}

// Oracle replicates an external price feed onto the venue grid, substituting
// for the pricing model entirely.
type Oracle struct {
	Source market.Oracle
	Pair   string
	Grid   market.Grid
}

// Quote implements Quoter: oracle bid maps down, oracle ask maps up.
func (o *Oracle) Quote(InventoryState) (market.PriceLimit, market.PriceLimit, error) {
	bidPrice, askPrice, err := o.Source.BidAskPrice(o.Pair)
	if err != nil {
		return 0, 0, fmt.Errorf("oracle price: %w", err)
	}
	bid, err := o.Grid.BidLimit(bidPrice)
	if err != nil {
		return 0, 0, err
	}
	ask, err := o.Grid.AskLimit(askPrice)
	if err != nil {
		return 0, 0, err
	}
	if bid >= ask {
		return 0, 0, fmt.Errorf("%w: %d >= %d", ErrCrossedQuote, bid, ask)
	}
	return bid, ask, nil
}

// Model runs the full inventory-skew model. Parameters may be swapped at
// runtime; the read path takes a snapshot so a cycle always prices with one
// consistent parameter set.
type Model struct {
	venue market.Venue
	grid  market.Grid

	mu     sync.RWMutex
	params pricing.Params
}

// NewModel validates the initial parameters.
func NewModel(venue market.Venue, grid market.Grid, params pricing.Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Model{venue: venue, grid: grid, params: params}, nil
}

// SetParameters validates then swaps the parameter set.
func (m *Model) SetParameters(p pricing.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.params = p
	m.mu.Unlock()
	return nil
}

// Parameters returns the current parameter set.
func (m *Model) Parameters() pricing.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// Quote implements Quoter: delta -> reservation price -> spread -> grid.
func (m *Model) Quote(state InventoryState) (market.PriceLimit, market.PriceLimit, error) {
	p := m.Parameters()

	// Value base holdings with the venue's own rate function at the
	// current price's grid position.
	midLimit, err := m.grid.BidLimit(state.CurrPrice)
	if err != nil {
		return 0, 0, err
	}
	convert := func(base fixed.Fixed) (fixed.Fixed, error) {
		return m.venue.BaseToQuote(midLimit, state.Width, base)
	}

	delta, err := pricing.InventoryDelta(convert, state.Base, state.Quote, p.TargetRatio)
	if err != nil {
		return 0, 0, fmt.Errorf("inventory delta: %w", err)
	}
	r, err := pricing.ReservationPrice(state.CurrPrice, delta, p.VolatilitySq, p.RiskAversion)
	if err != nil {
		return 0, 0, fmt.Errorf("reservation price: %w", err)
	}
	spread, err := pricing.OptimalSpread(p.VolatilitySq, p.RiskAversion, p.ArrivalIntensity)
	if err != nil {
		return 0, 0, fmt.Errorf("optimal spread: %w", err)
	}
	bidPrice, askPrice, err := pricing.BidAsk(r, spread)
	if err != nil {
		return 0, 0, err
	}

	bid, err := m.grid.BidLimit(bidPrice)
	if err != nil {
		return 0, 0, err
	}
	ask, err := m.grid.AskLimit(askPrice)
	if err != nil {
		return 0, 0, err
	}
	if bid >= ask {
		return 0, 0, fmt.Errorf("%w: %d >= %d", ErrCrossedQuote, bid, ask)
	}
	return bid, ask, nil
}

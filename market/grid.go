package market

import (
	"errors"
	"fmt"

	"liquidity-engine/fixed"
)

var ErrBadTick = errors.New("market: tick size must be positive")

// Grid maps between raw prices and the venue's discrete limit indices.
// A limit l prices at l*Tick quote units per base unit.
type Grid struct {
	Tick fixed.Fixed
}

// NewGrid validates the tick size.
func NewGrid(tick fixed.Fixed) (Grid, error) {
	if tick.IsZero() {
		return Grid{}, ErrBadTick
	}
	return Grid{Tick: tick}, nil
}

// Price returns the price at a limit.
func (g Grid) Price(l PriceLimit) (fixed.Fixed, error) {
	if l < 0 {
		return fixed.Fixed{}, fmt.Errorf("market: negative limit %d", l)
	}
	n, err := fixed.FromUint(uint64(l))
	if err != nil {
		return fixed.Fixed{}, err
	}
	return n.Mul(g.Tick)
}

// BidLimit maps a price to the grid rounding down, so a resting bid is never
// more aggressive than the computed price.
func (g Grid) BidLimit(p fixed.Fixed) (PriceLimit, error) {
	q, err := p.Div(g.Tick)
	if err != nil {
		return 0, err
	}
	return PriceLimit(q.Floor()), nil
}

// AskLimit maps a price to the grid rounding up.
func (g Grid) AskLimit(p fixed.Fixed) (PriceLimit, error) {
	q, err := p.Div(g.Tick)
	if err != nil {
		return 0, err
	}
	return PriceLimit(q.Ceil()), nil
}

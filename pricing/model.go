// Package pricing implements the Avellaneda–Stoikov inventory-skew model as
// pure functions over fixed-point values. All computation is exact Q47.28
// arithmetic; any arithmetic fault propagates instead of being clamped, since
// a wrong quote is worse than no quote.
package pricing

import (
	"errors"
	"fmt"

	"liquidity-engine/fixed"
)

// ErrDomain is returned when a parameter leaves the model's domain.
var ErrDomain = errors.New("pricing: parameter out of domain")

// ConvertFunc converts a base amount to quote units. The quote engine binds
// this to the venue's own exchange-rate function at the current price and
// batch width, so the model and the order book always agree on valuation.
type ConvertFunc func(base fixed.Fixed) (fixed.Fixed, error)

// Params are the model's tuning parameters.
type Params struct {
	// RiskAversion is gamma.
	RiskAversion fixed.Fixed
	// VolatilitySq is sigma squared, with any horizon term folded in.
	VolatilitySq fixed.Fixed
	// ArrivalIntensity is k, the order-flow intensity.
	ArrivalIntensity fixed.Fixed
	// TargetRatio is the target quote fraction of total holdings, in [0, 1].
	TargetRatio fixed.Fixed
}

// Validate rejects parameter sets the model cannot price with.
func (p Params) Validate() error {
	if p.RiskAversion.IsZero() {
		return fmt.Errorf("%w: risk aversion must be positive", ErrDomain)
	}
	if p.ArrivalIntensity.IsZero() {
		return fmt.Errorf("%w: arrival intensity must be positive", ErrDomain)
	}
	if p.TargetRatio.Cmp(fixed.One()) > 0 {
		return fmt.Errorf("%w: target ratio above one", ErrDomain)
	}
	return nil
}

// InventoryDelta returns the pool's quote-unit imbalance: current quote
// holdings minus targetRatio*(base-equivalent + quote). Positive means
// quote-overexposed, negative quote-underexposed. An empty pool is neutral
// by definition rather than a division fault.
func InventoryDelta(convert ConvertFunc, base, quote, targetRatio fixed.Fixed) (fixed.Signed, error) {
	if base.IsZero() && quote.IsZero() {
		return fixed.Signed{}, nil
	}
	baseEq, err := convert(base)
	if err != nil {
		return fixed.Signed{}, err
	}
	total, err := baseEq.Add(quote)
	if err != nil {
		return fixed.Signed{}, err
	}
	target, err := targetRatio.Mul(total)
	if err != nil {
		return fixed.Signed{}, err
	}
	if quote.Cmp(target) >= 0 {
		d, err := quote.Sub(target)
		if err != nil {
			return fixed.Signed{}, err
		}
		return fixed.NewSigned(d, false), nil
	}
	d, err := target.Sub(quote)
	if err != nil {
		return fixed.Signed{}, err
	}
	return fixed.NewSigned(d, true), nil
}

// ReservationPrice shifts the mid by the inventory skew:
//
//	r = s - sign(q) * |q| * gamma * sigma^2
//
// Quote overexposure (q > 0) moves the price down, favoring spending quote;
// underexposure moves it up. Shifting below zero is an arithmetic fault.
func ReservationPrice(mid fixed.Fixed, delta fixed.Signed, volSq, riskAversion fixed.Fixed) (fixed.Fixed, error) {
	skew, err := delta.Mag.Mul(riskAversion)
	if err != nil {
		return fixed.Fixed{}, err
	}
	skew, err = skew.Mul(volSq)
	if err != nil {
		return fixed.Fixed{}, err
	}
	if delta.Sign() > 0 {
		return mid.Sub(skew)
	}
	return mid.Add(skew)
}

// OptimalSpread returns the full bid/ask distance:
//
//	D = gamma * sigma^2 + (2/gamma) * log2(1 + gamma/k)
func OptimalSpread(volSq, riskAversion, intensity fixed.Fixed) (fixed.Fixed, error) {
	if intensity.IsZero() {
		return fixed.Fixed{}, fmt.Errorf("%w: zero arrival intensity", ErrDomain)
	}
	if riskAversion.IsZero() {
		return fixed.Fixed{}, fmt.Errorf("%w: zero risk aversion", ErrDomain)
	}

	riskTerm, err := riskAversion.Mul(volSq)
	if err != nil {
		return fixed.Fixed{}, err
	}

	ratio, err := riskAversion.Div(intensity)
	if err != nil {
		return fixed.Fixed{}, err
	}
	arg, err := fixed.One().Add(ratio)
	if err != nil {
		return fixed.Fixed{}, err
	}
	lg, err := arg.Log2()
	if err != nil {
		return fixed.Fixed{}, err
	}
	// Unsigned inputs keep the argument at or above one, so the log cannot
	// come out negative; a negative here means the domain was violated.
	if lg.Sign() < 0 {
		return fixed.Fixed{}, fmt.Errorf("%w: log argument below one", ErrDomain)
	}

	flowTerm, err := fixed.Two().Div(riskAversion)
	if err != nil {
		return fixed.Fixed{}, err
	}
	flowTerm, err = flowTerm.Mul(lg.Mag)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return riskTerm.Add(flowTerm)
}

// BidAsk centers the spread on the reservation price: bid = r - D/2,
// ask = r + D/2.
func BidAsk(r, spread fixed.Fixed) (bid, ask fixed.Fixed, err error) {
	half, err := spread.Div(fixed.Two())
	if err != nil {
		return fixed.Fixed{}, fixed.Fixed{}, err
	}
	bid, err = r.Sub(half)
	if err != nil {
		return fixed.Fixed{}, fixed.Fixed{}, err
	}
	ask, err = r.Add(half)
	if err != nil {
		return fixed.Fixed{}, fixed.Fixed{}, err
	}
	return bid, ask, nil
}

// Package market defines the venue-facing data model: the discrete price
// grid, order and batch identities, and the collaborator interfaces the
// engine consumes.
package market

import "liquidity-engine/fixed"

// Side is the side a resting order quotes on.
type Side int

const (
	Bid Side = iota
	Ask
)

// String returns the side name.
func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Amount is an unsigned asset amount in the asset's smallest unit.
type Amount uint64

// PriceLimit is a discretized price level on the venue's tick grid.
type PriceLimit int64

// OrderID identifies one resting order on the venue.
type OrderID string

// BatchID identifies the aggregate of orders sharing a limit and nonce.
type BatchID string

// RestingOrder is the engine's record of its live order on one side. The
// identity changes on every cancel/replace.
type RestingOrder struct {
	ID    OrderID
	Batch BatchID
	Side  Side
	Limit PriceLimit
}

// OrderBatch is a read-only snapshot of a venue batch.
type OrderBatch struct {
	Limit        PriceLimit
	IsBid        bool
	AmountIn     Amount
	AmountFilled Amount
	Base         Amount
	Quote        Amount
}

// Remaining is the batch's unfilled amount in the asset it still offers:
// base for an ask, quote for a bid. Zero means fully filled.
func (b OrderBatch) Remaining() Amount {
	if b.IsBid {
		return b.Quote
	}
	return b.Base
}

// Reserves are the strategy's funds not locked in a resting order.
type Reserves struct {
	Base  Amount
	Quote Amount
}

// Venue is the external order book collaborator. Calls are synchronous and
// atomic: they complete or fail with no partial state.
type Venue interface {
	CurrentTradedLimit(marketID string) (PriceLimit, error)
	BatchInfo(id BatchID) (OrderBatch, error)
	PlaceOrder(marketID string, isBid bool, amount Amount, limit PriceLimit) (OrderID, BatchID, error)
	CollectOrder(id OrderID) (base, quote Amount, err error)
	// BaseToQuote converts a base amount to quote units with the venue's
	// own exchange-rate function at the given limit and batch width.
	BaseToQuote(limit PriceLimit, width fixed.Fixed, base fixed.Fixed) (fixed.Fixed, error)
}

// Oracle supplies externally observed bid/ask prices for replicating-style
// strategies.
type Oracle interface {
	BidAskPrice(pair string) (bid, ask fixed.Fixed, err error)
}

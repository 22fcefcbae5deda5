package market

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"liquidity-engine/fixed"
)

var (
	ErrUnknownOrder = errors.New("market: unknown order")
	ErrUnknownBatch = errors.New("market: unknown batch")
)

// SimVenue is a deterministic in-memory venue for tests and the simulator.
// It keeps one batch per placed order, lets callers move the traded limit and
// inject fills, and can be armed to reject the next placement or collection.
type SimVenue struct {
	mu      sync.Mutex
	grid    Grid
	traded  PriceLimit
	batches map[BatchID]*OrderBatch
	orders  map[OrderID]BatchID

	failPlace   error
	failCollect error

	placed    int
	collected int
}

// NewSimVenue creates a venue with the given grid and starting traded limit.
func NewSimVenue(grid Grid, traded PriceLimit) *SimVenue {
	return &SimVenue{
		grid:    grid,
		traded:  traded,
		batches: make(map[BatchID]*OrderBatch),
		orders:  make(map[OrderID]BatchID),
	}
}

// SetTradedLimit moves the current traded price.
func (v *SimVenue) SetTradedLimit(l PriceLimit) {
	v.mu.Lock()
	v.traded = l
	v.mu.Unlock()
}

// FailNextPlace arms a one-shot placement failure.
func (v *SimVenue) FailNextPlace(err error) {
	v.mu.Lock()
	v.failPlace = err
	v.mu.Unlock()
}

// FailNextCollect arms a one-shot collection failure.
func (v *SimVenue) FailNextCollect(err error) {
	v.mu.Lock()
	v.failCollect = err
	v.mu.Unlock()
}

// CurrentTradedLimit implements Venue.
func (v *SimVenue) CurrentTradedLimit(string) (PriceLimit, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.traded, nil
}

// BatchInfo implements Venue.
func (v *SimVenue) BatchInfo(id BatchID) (OrderBatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.batches[id]
	if !ok {
		return OrderBatch{}, fmt.Errorf("%w: %s", ErrUnknownBatch, id)
	}
	return *b, nil
}

// PlaceOrder implements Venue. Each placement opens a fresh batch.
func (v *SimVenue) PlaceOrder(_ string, isBid bool, amount Amount, limit PriceLimit) (OrderID, BatchID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failPlace != nil {
		err := v.failPlace
		v.failPlace = nil
		return "", "", err
	}
	if amount == 0 {
		return "", "", errors.New("market: zero amount order")
	}

	oid := OrderID(uuid.NewString())
	bid := BatchID(uuid.NewString())
	batch := &OrderBatch{Limit: limit, IsBid: isBid, AmountIn: amount}
	if isBid {
		batch.Quote = amount
	} else {
		batch.Base = amount
	}
	v.batches[bid] = batch
	v.orders[oid] = bid
	v.placed++
	return oid, bid, nil
}

// CollectOrder implements Venue. It returns the batch's current base and
// quote holdings and retires the order and batch.
func (v *SimVenue) CollectOrder(id OrderID) (Amount, Amount, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failCollect != nil {
		err := v.failCollect
		v.failCollect = nil
		return 0, 0, err
	}
	bid, ok := v.orders[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	b := v.batches[bid]
	delete(v.orders, id)
	delete(v.batches, bid)
	v.collected++
	return b.Base, b.Quote, nil
}

// BaseToQuote implements Venue with a flat rate across the batch width.
func (v *SimVenue) BaseToQuote(limit PriceLimit, _ fixed.Fixed, base fixed.Fixed) (fixed.Fixed, error) {
	price, err := v.grid.Price(limit)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return base.Mul(price)
}

// Fill trades against an order: the amount is in the batch's offered asset
// (base for an ask, quote for a bid) and is capped at what remains. The
// counter proceeds accrue into the batch at the batch's limit price.
func (v *SimVenue) Fill(id OrderID, amount Amount) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	bid, ok := v.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	b := v.batches[bid]
	price, err := v.grid.Price(b.Limit)
	if err != nil {
		return err
	}

	if b.IsBid {
		if amount > b.Quote {
			amount = b.Quote
		}
		if amount == 0 {
			return nil
		}
		q, err := fixed.FromUint(uint64(amount))
		if err != nil {
			return err
		}
		baseOut, err := q.Div(price)
		if err != nil {
			return err
		}
		b.Quote -= amount
		b.AmountFilled += amount
		b.Base += Amount(baseOut.Floor())
		return nil
	}

	if amount > b.Base {
		amount = b.Base
	}
	if amount == 0 {
		return nil
	}
	x, err := fixed.FromUint(uint64(amount))
	if err != nil {
		return err
	}
	quoteOut, err := x.Mul(price)
	if err != nil {
		return err
	}
	b.Base -= amount
	b.AmountFilled += amount
	b.Quote += Amount(quoteOut.Floor())
	return nil
}

// Stats returns placement and collection counts.
func (v *SimVenue) Stats() (placed, collected int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.placed, v.collected
}

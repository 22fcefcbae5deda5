package engine

import (
	"fmt"

	"go.uber.org/zap"

	"liquidity-engine/fixed"
	"liquidity-engine/market"
	"liquidity-engine/quote"
)

// TriggerCycle runs one quote/reconcile cycle. When paused, or when the
// throttle interval has not elapsed, it is a pure no-op: no state is read
// from the venue and nothing changes. Arithmetic or quoting faults abort the
// cycle before any order mutation; collection faults abort mid-cycle but
// never lose already-credited funds.
func (e *Engine) TriggerCycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.paused || (!e.lastTrigger.IsZero() && now.Before(e.lastTrigger.Add(e.cfg.MinInterval))) {
		if e.mon != nil {
			e.mon.CycleSkipped()
		}
		return nil
	}

	traded, err := e.venue.CurrentTradedLimit(e.cfg.MarketID)
	if err != nil {
		return e.cycleFailed(fmt.Errorf("current traded limit: %w", err))
	}
	state, err := e.inventoryStateLocked(traded)
	if err != nil {
		return e.cycleFailed(err)
	}
	bidLimit, askLimit, err := e.quoter.Quote(state)
	if err != nil {
		return e.cycleFailed(fmt.Errorf("quote: %w", err))
	}

	report := CycleReport{BidLimit: bidLimit, AskLimit: askLimit}

	cb, cq, placedBid, err := e.reconcileSideLocked(market.Bid, bidLimit, traded)
	report.CollectedBase += cb
	report.CollectedQuote += cq
	report.PlacedBid = placedBid
	if err != nil {
		return e.cycleFailed(err)
	}

	cb, cq, placedAsk, err := e.reconcileSideLocked(market.Ask, askLimit, traded)
	report.CollectedBase += cb
	report.CollectedQuote += cq
	report.PlacedAsk = placedAsk
	if err != nil {
		return e.cycleFailed(err)
	}

	e.lastTrigger = now
	report.Reserves = e.reserves
	if e.mon != nil {
		e.mon.CycleRun()
		e.mon.AddCollected(uint64(report.CollectedBase), uint64(report.CollectedQuote))
		e.mon.SetReserves(uint64(e.reserves.Base), uint64(e.reserves.Quote))
	}
	e.log.Info("cycle complete",
		zap.Int64("bid_limit", int64(bidLimit)),
		zap.Int64("ask_limit", int64(askLimit)),
		zap.Uint64("collected_base", uint64(report.CollectedBase)),
		zap.Uint64("collected_quote", uint64(report.CollectedQuote)),
		zap.Bool("placed_bid", report.PlacedBid),
		zap.Bool("placed_ask", report.PlacedAsk))
	e.pub.Publish(Event{Type: EventCycle, Time: now, Cycle: &report})
	return nil
}

// ManualCollect collects both sides unconditionally without re-quoting, used
// to recover funds. Operator only. It shares the collect/credit path with
// the cycle, so accounting rules exist in exactly one place.
func (e *Engine) ManualCollect(caller string) error {
	if caller != e.cfg.Operator {
		return ErrUnauthorized
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	report := CycleReport{}
	for _, side := range []market.Side{market.Bid, market.Ask} {
		if e.restingLocked(side) == nil {
			continue
		}
		base, quoteAmt, err := e.collectLocked(side)
		if err != nil {
			return err
		}
		report.CollectedBase += base
		report.CollectedQuote += quoteAmt
	}
	report.Reserves = e.reserves
	if e.mon != nil {
		e.mon.AddCollected(uint64(report.CollectedBase), uint64(report.CollectedQuote))
		e.mon.SetReserves(uint64(e.reserves.Base), uint64(e.reserves.Quote))
	}
	e.log.Info("manual collect",
		zap.Uint64("collected_base", uint64(report.CollectedBase)),
		zap.Uint64("collected_quote", uint64(report.CollectedQuote)))
	e.pub.Publish(Event{Type: EventManualCollect, Time: e.clock.Now(), Cycle: &report})
	return nil
}

// inventoryStateLocked derives the pricing inputs from the traded limit and
// free reserves.
func (e *Engine) inventoryStateLocked(traded market.PriceLimit) (quote.InventoryState, error) {
	price, err := e.grid.Price(traded)
	if err != nil {
		return quote.InventoryState{}, fmt.Errorf("traded price: %w", err)
	}
	base, err := fixed.FromUint(uint64(e.reserves.Base))
	if err != nil {
		return quote.InventoryState{}, err
	}
	quoteAmt, err := fixed.FromUint(uint64(e.reserves.Quote))
	if err != nil {
		return quote.InventoryState{}, err
	}
	return quote.InventoryState{
		CurrPrice: price,
		Width:     e.cfg.Width,
		Base:      base,
		Quote:     quoteAmt,
	}, nil
}

// reconcileSideLocked runs the per-side state machine: staleness test,
// collect, crossing guard, replacement.
func (e *Engine) reconcileSideLocked(side market.Side, target, traded market.PriceLimit) (collectedBase, collectedQuote market.Amount, placed bool, err error) {
	if rest := e.restingLocked(side); rest != nil {
		batch, err := e.venue.BatchInfo(rest.Batch)
		if err != nil {
			return 0, 0, false, fmt.Errorf("batch info %s: %w", rest.Batch, err)
		}
		stale := batch.Limit != target || batch.Remaining() == 0
		if !stale {
			// The resting order still matches the quote; leave it.
			return 0, 0, false, nil
		}
		collectedBase, collectedQuote, err = e.collectLocked(side)
		if err != nil {
			return 0, 0, false, err
		}
	}

	// Market-crossing guard: never rest exactly at the traded limit; step
	// one increment away from the market instead.
	limit := target
	if limit == traded {
		if side == market.Bid {
			limit--
		} else {
			limit++
		}
	}

	amount := e.offeredReserveLocked(side)
	if amount == 0 {
		// Nothing to offer; the side stays empty until reserves arrive.
		return collectedBase, collectedQuote, false, nil
	}

	oid, batchID, err := e.venue.PlaceOrder(e.cfg.MarketID, side == market.Bid, amount, limit)
	if err != nil {
		// Collected proceeds are already credited to reserves; a failed
		// placement leaves the side empty with the funds safe.
		if e.mon != nil {
			e.mon.PlaceFailed()
		}
		e.log.Warn("order placement rejected",
			zap.String("side", side.String()),
			zap.Int64("limit", int64(limit)),
			zap.Uint64("amount", uint64(amount)),
			zap.Error(err))
		return collectedBase, collectedQuote, false, nil
	}

	e.debitOfferedLocked(side, amount)
	e.setRestingLocked(side, &market.RestingOrder{ID: oid, Batch: batchID, Side: side, Limit: limit})
	if e.mon != nil {
		e.mon.OrderPlaced(side.String())
	}
	return collectedBase, collectedQuote, true, nil
}

// collectLocked retrieves a side's proceeds, credits them into reserves and
// clears the resting identity.
func (e *Engine) collectLocked(side market.Side) (market.Amount, market.Amount, error) {
	rest := e.restingLocked(side)
	base, quoteAmt, err := e.venue.CollectOrder(rest.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("collect order %s: %w", rest.ID, err)
	}
	e.reserves.Base += base
	e.reserves.Quote += quoteAmt
	e.setRestingLocked(side, nil)
	if e.mon != nil {
		e.mon.OrderCollected(side.String())
	}
	return base, quoteAmt, nil
}

func (e *Engine) restingLocked(side market.Side) *market.RestingOrder {
	if side == market.Bid {
		return e.bid
	}
	return e.ask
}

func (e *Engine) setRestingLocked(side market.Side, o *market.RestingOrder) {
	if side == market.Bid {
		e.bid = o
	} else {
		e.ask = o
	}
}

// offeredReserveLocked is the reserve of the asset a side offers: quote for
// a bid, base for an ask.
func (e *Engine) offeredReserveLocked(side market.Side) market.Amount {
	if side == market.Bid {
		return e.reserves.Quote
	}
	return e.reserves.Base
}

func (e *Engine) debitOfferedLocked(side market.Side, amount market.Amount) {
	if side == market.Bid {
		e.reserves.Quote -= amount
	} else {
		e.reserves.Base -= amount
	}
}

func (e *Engine) cycleFailed(err error) error {
	if e.mon != nil {
		e.mon.CycleFailed()
	}
	e.log.Error("cycle failed", zap.Error(err))
	return err
}

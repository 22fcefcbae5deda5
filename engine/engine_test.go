package engine_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liquidity-engine/engine"
	"liquidity-engine/fixed"
	"liquidity-engine/market"
	"liquidity-engine/pricing"
	"liquidity-engine/quote"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubQuoter returns settable limits, standing in for any strategy variant.
type stubQuoter struct {
	mu  sync.Mutex
	bid market.PriceLimit
	ask market.PriceLimit
	err error
}

func (s *stubQuoter) Quote(quote.InventoryState) (market.PriceLimit, market.PriceLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bid, s.ask, s.err
}

func (s *stubQuoter) set(bid, ask market.PriceLimit) {
	s.mu.Lock()
	s.bid, s.ask = bid, ask
	s.mu.Unlock()
}

type fixture struct {
	eng    *engine.Engine
	venue  *market.SimVenue
	quoter *stubQuoter
	clock  *fakeClock
}

func newFixture(t *testing.T, traded market.PriceLimit, bid, ask market.PriceLimit) *fixture {
	t.Helper()
	g, err := market.NewGrid(fixed.One())
	require.NoError(t, err)
	venue := market.NewSimVenue(g, traded)
	q := &stubQuoter{bid: bid, ask: ask}
	clock := newFakeClock()
	eng, err := engine.New(engine.Config{
		MarketID:    "BASE-QUOTE",
		MinInterval: time.Minute,
		Operator:    "op",
		Width:       fixed.One(),
	}, engine.Components{
		Venue:  venue,
		Quoter: q,
		Grid:   g,
		Clock:  clock,
	})
	require.NoError(t, err)
	return &fixture{eng: eng, venue: venue, quoter: q, clock: clock}
}

func (f *fixture) step(t *testing.T) {
	t.Helper()
	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.eng.TriggerCycle())
}

func TestCyclePlacesBothSidesFromEmpty(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)

	require.NoError(t, f.eng.TriggerCycle())

	bid, ask := f.eng.RestingOrders()
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	require.Equal(t, market.PriceLimit(999), bid.Limit)
	require.Equal(t, market.PriceLimit(1001), ask.Limit)
	require.Equal(t, market.Reserves{}, f.eng.Reserves(), "full reserves go out on placement")

	placed, _ := f.venue.Stats()
	require.Equal(t, 2, placed)
}

func TestCycleSkipsZeroReserveSides(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	require.NoError(t, f.eng.TriggerCycle())
	bid, ask := f.eng.RestingOrders()
	require.Nil(t, bid)
	require.Nil(t, ask)
}

func TestThrottleSkipsEarlyTrigger(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)

	require.NoError(t, f.eng.TriggerCycle())
	first := f.eng.LastTrigger()
	bid1, _ := f.eng.RestingOrders()

	// Within the interval the trigger is a pure no-op.
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.eng.TriggerCycle())
	require.Equal(t, first, f.eng.LastTrigger())
	bid2, _ := f.eng.RestingOrders()
	require.Equal(t, bid1.ID, bid2.ID)
}

func TestPauseMakesTriggerNoOp(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	f.step(t)

	require.NoError(t, f.eng.Pause("op"))

	reservesBefore := f.eng.Reserves()
	bidBefore, askBefore := f.eng.RestingOrders()
	lastBefore := f.eng.LastTrigger()
	placedBefore, collectedBefore := f.venue.Stats()

	f.clock.Advance(time.Hour)
	require.NoError(t, f.eng.TriggerCycle())

	require.Equal(t, reservesBefore, f.eng.Reserves())
	bidAfter, askAfter := f.eng.RestingOrders()
	require.Equal(t, bidBefore, bidAfter)
	require.Equal(t, askBefore, askAfter)
	require.Equal(t, lastBefore, f.eng.LastTrigger())
	placedAfter, collectedAfter := f.venue.Stats()
	require.Equal(t, placedBefore, placedAfter, "paused cycle must not touch the venue")
	require.Equal(t, collectedBefore, collectedAfter)

	require.NoError(t, f.eng.Unpause("op"))
	f.step(t)
}

func TestPauseRequiresOperator(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	require.ErrorIs(t, f.eng.Pause("mallory"), engine.ErrUnauthorized)
	require.ErrorIs(t, f.eng.Unpause("mallory"), engine.ErrUnauthorized)
	require.ErrorIs(t, f.eng.ManualCollect("mallory"), engine.ErrUnauthorized)
}

func TestCrossingGuardNudgesAwayFromMarket(t *testing.T) {
	// Bid target sits exactly at the traded limit: rest one tick lower.
	f := newFixture(t, 1000, 1000, 1002)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)

	require.NoError(t, f.eng.TriggerCycle())
	bid, ask := f.eng.RestingOrders()
	require.Equal(t, market.PriceLimit(999), bid.Limit)
	require.Equal(t, market.PriceLimit(1002), ask.Limit)
}

func TestFilledAskCollectedAndLeftEmpty(t *testing.T) {
	// A fully filled ask at an unchanged target limit equal to the traded
	// limit: collect the proceeds and, with no base left to offer, leave
	// the side empty.
	f := newFixture(t, 950, 900, 1001)
	_, err := f.eng.Seed("op", 1000, 950000)
	require.NoError(t, err)

	require.NoError(t, f.eng.TriggerCycle())
	_, ask := f.eng.RestingOrders()
	require.NotNil(t, ask)
	require.Equal(t, market.PriceLimit(1001), ask.Limit)

	// The ask trades out completely and the market moves up to its level.
	require.NoError(t, f.venue.Fill(ask.ID, 1000))
	f.venue.SetTradedLimit(1001)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.eng.TriggerCycle())

	bid, askAfter := f.eng.RestingOrders()
	require.Nil(t, askAfter, "no base reserves: the ask side stays empty")
	require.NotNil(t, bid, "untouched bid keeps resting")
	require.Equal(t, market.Amount(1001000), f.eng.Reserves().Quote, "ask proceeds credited exactly")
	require.Zero(t, f.eng.Reserves().Base)
}

func TestRepricedOrderIsReplacedWithNewIdentity(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())
	bid1, ask1 := f.eng.RestingOrders()

	// New quote on both sides; both resting orders are stale by price.
	f.quoter.set(997, 1004)
	f.step(t)

	bid2, ask2 := f.eng.RestingOrders()
	require.Equal(t, market.PriceLimit(997), bid2.Limit)
	require.Equal(t, market.PriceLimit(1004), ask2.Limit)
	require.NotEqual(t, bid1.ID, bid2.ID, "cancel/replace must change identity")
	require.NotEqual(t, ask1.ID, ask2.ID)
}

func TestNudgeAppliesAfterCollect(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())

	// Retarget the ask to where the market now trades; the replacement
	// must rest one tick above it.
	f.quoter.set(999, 1005)
	f.venue.SetTradedLimit(1005)
	f.step(t)

	_, ask := f.eng.RestingOrders()
	require.NotNil(t, ask)
	require.Equal(t, market.PriceLimit(1006), ask.Limit)
}

func TestPlacementFailureKeepsCollectedFunds(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())
	_, ask := f.eng.RestingOrders()

	// Ask is stale by price; its collection succeeds but the replacement
	// is rejected by the venue.
	require.NoError(t, f.venue.Fill(ask.ID, 400))
	f.quoter.set(999, 1003)
	f.venue.FailNextPlace(errors.New("venue rejected"))

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.eng.TriggerCycle(), "placement failure is not a cycle failure")

	_, askAfter := f.eng.RestingOrders()
	require.Nil(t, askAfter)
	res := f.eng.Reserves()
	require.Equal(t, market.Amount(600), res.Base, "unfilled base returned to reserves")
	require.Equal(t, market.Amount(400400), res.Quote, "fill proceeds kept despite rejection")

	// The next cycle re-quotes the side from the safe reserves.
	f.step(t)
	_, askRetry := f.eng.RestingOrders()
	require.NotNil(t, askRetry)
	require.Equal(t, market.PriceLimit(1003), askRetry.Limit)
}

func TestCollectFailureAbortsCycle(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())
	last := f.eng.LastTrigger()
	bid1, ask1 := f.eng.RestingOrders()

	// Bid stays fresh, ask goes stale, and its collection fails.
	f.quoter.set(999, 1003)
	f.venue.FailNextCollect(errors.New("venue down"))

	f.clock.Advance(2 * time.Minute)
	require.Error(t, f.eng.TriggerCycle())

	bid2, ask2 := f.eng.RestingOrders()
	require.Equal(t, bid1, bid2)
	require.Equal(t, ask1, ask2, "failed collect leaves the order resting")
	require.Equal(t, market.Reserves{}, f.eng.Reserves())
	require.Equal(t, last, f.eng.LastTrigger(), "failed cycle is retryable")

	// Retry succeeds.
	require.NoError(t, f.eng.TriggerCycle())
	_, askRetry := f.eng.RestingOrders()
	require.Equal(t, market.PriceLimit(1003), askRetry.Limit)
}

func TestManualCollect(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())
	_, ask := f.eng.RestingOrders()
	require.NoError(t, f.venue.Fill(ask.ID, 250))

	placedBefore, _ := f.venue.Stats()
	require.NoError(t, f.eng.ManualCollect("op"))

	bid, askAfter := f.eng.RestingOrders()
	require.Nil(t, bid)
	require.Nil(t, askAfter)
	res := f.eng.Reserves()
	require.Equal(t, market.Amount(750), res.Base)
	require.Equal(t, market.Amount(1000+250250), res.Quote)

	placedAfter, collected := f.venue.Stats()
	require.Equal(t, placedBefore, placedAfter, "manual collect never re-quotes")
	require.Equal(t, 2, collected)
}

func TestSharePoolThroughEngine(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)

	shares, err := f.eng.Seed("op", 500, 500000)
	require.NoError(t, err)
	// 500000 quote at price 1000 converts to 500 base: both sides bind
	// equally.
	require.Equal(t, uint64(500), shares)
	require.Equal(t, market.Reserves{Base: 500, Quote: 500000}, f.eng.Reserves())

	minted, err := f.eng.Deposit("op", 250, 250000)
	require.NoError(t, err)
	require.Equal(t, uint64(250), minted)
	require.Equal(t, uint64(750), f.eng.TotalShares())

	base, quoteAmt, err := f.eng.Withdraw("op", 750)
	require.NoError(t, err)
	require.Equal(t, market.Amount(750), base)
	require.Equal(t, market.Amount(750000), quoteAmt)
	require.Equal(t, market.Reserves{}, f.eng.Reserves())
	require.Zero(t, f.eng.TotalShares())
}

func TestPrivatePoolRestrictsDeposits(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	_, err := f.eng.Seed("mallory", 100, 100)
	require.ErrorIs(t, err, engine.ErrUnauthorized)

	_, err = f.eng.Seed("op", 1000, 1000000)
	require.NoError(t, err)
	_, err = f.eng.Deposit("mallory", 10, 10)
	require.ErrorIs(t, err, engine.ErrUnauthorized)

	// Withdraw stays open to any holder; a non-holder just has no shares.
	_, _, err = f.eng.Withdraw("mallory", 1)
	require.Error(t, err)
}

func TestSetQuoteParameters(t *testing.T) {
	g, err := market.NewGrid(fixed.One())
	require.NoError(t, err)
	venue := market.NewSimVenue(g, 1000)

	gamma, err := fixed.FromRatio(1, 2)
	require.NoError(t, err)
	volSq, err := fixed.FromRatio(1, 10)
	require.NoError(t, err)
	k, err := fixed.FromRatio(3, 2)
	require.NoError(t, err)
	ratio, err := fixed.FromRatio(1, 2)
	require.NoError(t, err)
	params := pricing.Params{RiskAversion: gamma, VolatilitySq: volSq, ArrivalIntensity: k, TargetRatio: ratio}

	model, err := quote.NewModel(venue, g, params)
	require.NoError(t, err)
	eng, err := engine.New(engine.Config{
		MarketID: "BASE-QUOTE", Operator: "op", Width: fixed.One(),
	}, engine.Components{Venue: venue, Quoter: model, Grid: g})
	require.NoError(t, err)

	require.ErrorIs(t, eng.SetQuoteParameters("mallory", params), engine.ErrUnauthorized)

	bad := params
	bad.ArrivalIntensity = fixed.Zero()
	require.ErrorIs(t, eng.SetQuoteParameters("op", bad), pricing.ErrDomain)
	require.NoError(t, eng.SetQuoteParameters("op", params))
}

func TestSetQuoteParametersOnFixedStrategy(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	require.ErrorIs(t, f.eng.SetQuoteParameters("op", pricing.Params{}), engine.ErrNotTunable)
}

func TestEventsCarryExactAmounts(t *testing.T) {
	f := newFixture(t, 1000, 999, 1001)
	events := f.eng.Events().Subscribe(16)

	shares, err := f.eng.Seed("op", 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, f.eng.TriggerCycle())

	ev := <-events
	require.Equal(t, engine.EventSharesMinted, ev.Type)
	require.Equal(t, shares, ev.Shares.Shares)
	require.Equal(t, market.Amount(1000), ev.Shares.Base)
	require.Equal(t, market.Amount(1000), ev.Shares.Quote)

	ev = <-events
	require.Equal(t, engine.EventCycle, ev.Type)
	require.Equal(t, market.PriceLimit(999), ev.Cycle.BidLimit)
	require.Equal(t, market.PriceLimit(1001), ev.Cycle.AskLimit)
	require.True(t, ev.Cycle.PlacedBid)
	require.True(t, ev.Cycle.PlacedAsk)
	require.Zero(t, ev.Cycle.CollectedBase)

	// Fill and reprice the ask; the next cycle reports the collected
	// proceeds exactly.
	_, ask := f.eng.RestingOrders()
	require.NoError(t, f.venue.Fill(ask.ID, 1000))
	f.quoter.set(999, 1002)
	f.step(t)

	ev = <-events
	require.Equal(t, engine.EventCycle, ev.Type)
	require.Equal(t, market.Amount(1001000), ev.Cycle.CollectedQuote)
	require.False(t, ev.Cycle.PlacedAsk, "nothing left to offer on the ask side")
}

package quote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidity-engine/fixed"
	"liquidity-engine/market"
	"liquidity-engine/pricing"
)

func fx(t *testing.T, num, den uint64) fixed.Fixed {
	t.Helper()
	f, err := fixed.FromRatio(num, den)
	require.NoError(t, err)
	return f
}

func unitGrid(t *testing.T) market.Grid {
	t.Helper()
	g, err := market.NewGrid(fixed.One())
	require.NoError(t, err)
	return g
}

func testParams(t *testing.T) pricing.Params {
	t.Helper()
	return pricing.Params{
		RiskAversion:     fx(t, 1, 2),
		VolatilitySq:     fx(t, 1, 10),
		ArrivalIntensity: fx(t, 3, 2),
		TargetRatio:      fx(t, 1, 2),
	}
}

func TestFixedQuoter(t *testing.T) {
	q, err := NewFixed(99, 101)
	require.NoError(t, err)
	bid, ask, err := q.Quote(InventoryState{})
	require.NoError(t, err)
	require.Equal(t, market.PriceLimit(99), bid)
	require.Equal(t, market.PriceLimit(101), ask)

	_, err = NewFixed(101, 101)
	require.ErrorIs(t, err, ErrCrossedQuote)
}

type stubOracle struct {
	bid, ask fixed.Fixed
	err      error
}

func (s stubOracle) BidAskPrice(string) (fixed.Fixed, fixed.Fixed, error) {
	return s.bid, s.ask, s.err
}

func TestOracleQuoter(t *testing.T) {
	o := &Oracle{
		Source: stubOracle{bid: fx(t, 199, 2), ask: fx(t, 201, 2)},
		Pair:   "BASE/QUOTE",
		Grid:   unitGrid(t),
	}
	// 99.5 maps down to 99, 100.5 maps up to 101.
	bid, ask, err := o.Quote(InventoryState{})
	require.NoError(t, err)
	require.Equal(t, market.PriceLimit(99), bid)
	require.Equal(t, market.PriceLimit(101), ask)
}

func TestOracleQuoterErrors(t *testing.T) {
	feedErr := errors.New("feed down")
	o := &Oracle{Source: stubOracle{err: feedErr}, Grid: unitGrid(t)}
	_, _, err := o.Quote(InventoryState{})
	require.ErrorIs(t, err, feedErr)

	// A collapsed feed produces a crossed pair after grid mapping.
	o = &Oracle{
		Source: stubOracle{bid: fx(t, 100, 1), ask: fx(t, 100, 1)},
		Grid:   unitGrid(t),
	}
	_, _, err = o.Quote(InventoryState{})
	require.ErrorIs(t, err, ErrCrossedQuote)
}

func TestModelQuoterNeutralInventory(t *testing.T) {
	g := unitGrid(t)
	venue := market.NewSimVenue(g, 1000)
	m, err := NewModel(venue, g, testParams(t))
	require.NoError(t, err)

	// Base equivalent equals quote holdings, so the delta is neutral and
	// the quotes straddle the mid: spread is about 1.71, half 0.855.
	state := InventoryState{
		CurrPrice: fx(t, 1000, 1),
		Width:     fixed.One(),
		Base:      fixed.One(),
		Quote:     fx(t, 1000, 1),
	}
	bid, ask, err := m.Quote(state)
	require.NoError(t, err)
	require.Equal(t, market.PriceLimit(999), bid)
	require.Equal(t, market.PriceLimit(1001), ask)
}

func TestModelQuoterSkewsAgainstOverexposure(t *testing.T) {
	g := unitGrid(t)
	venue := market.NewSimVenue(g, 1000)
	m, err := NewModel(venue, g, testParams(t))
	require.NoError(t, err)

	neutral := InventoryState{
		CurrPrice: fx(t, 1000, 1),
		Width:     fixed.One(),
		Base:      fixed.One(),
		Quote:     fx(t, 1000, 1),
	}
	nBid, nAsk, err := m.Quote(neutral)
	require.NoError(t, err)

	// All-quote holdings: overexposed, both quotes must shift down.
	overexposed := neutral
	overexposed.Base = fixed.Zero()
	overexposed.Quote = fx(t, 100, 1)
	oBid, oAsk, err := m.Quote(overexposed)
	require.NoError(t, err)

	require.Less(t, oBid, nBid)
	require.Less(t, oAsk, nAsk)
}

func TestModelQuoterEmptyPool(t *testing.T) {
	g := unitGrid(t)
	venue := market.NewSimVenue(g, 1000)
	m, err := NewModel(venue, g, testParams(t))
	require.NoError(t, err)

	state := InventoryState{CurrPrice: fx(t, 1000, 1), Width: fixed.One()}
	bid, ask, err := m.Quote(state)
	require.NoError(t, err)
	require.Equal(t, market.PriceLimit(999), bid)
	require.Equal(t, market.PriceLimit(1001), ask)
}

func TestModelSetParameters(t *testing.T) {
	g := unitGrid(t)
	venue := market.NewSimVenue(g, 1000)
	m, err := NewModel(venue, g, testParams(t))
	require.NoError(t, err)

	bad := testParams(t)
	bad.ArrivalIntensity = fixed.Zero()
	require.ErrorIs(t, m.SetParameters(bad), pricing.ErrDomain)
	// Rejected update leaves the old set in place.
	require.Zero(t, m.Parameters().ArrivalIntensity.Cmp(fx(t, 3, 2)))

	next := testParams(t)
	next.VolatilitySq = fx(t, 2, 10)
	require.NoError(t, m.SetParameters(next))
	require.Zero(t, m.Parameters().VolatilitySq.Cmp(fx(t, 2, 10)))

	_, err = NewModel(venue, g, bad)
	require.Error(t, err)
}

// sim drives the engine against the in-process venue with a seeded random
// walk. It never touches a real exchange; it exists to watch the
// cancel/replace loop and the share accounting behave over many cycles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/shopspring/decimal"

	"liquidity-engine/engine"
	"liquidity-engine/fixed"
	"liquidity-engine/journal"
	"liquidity-engine/market"
	"liquidity-engine/pricing"
	"liquidity-engine/quote"
)

func main() {
	ticks := flag.Int("ticks", 50, "number of simulated market ticks")
	seed := flag.Int64("seed", 1, "random walk seed")
	startLimit := flag.Int64("startLimit", 1000, "starting traded limit")
	baseDeposit := flag.Uint64("base", 10000, "seeded base reserves")
	quoteDeposit := flag.Uint64("quote", 10000000, "seeded quote reserves")
	gamma := flag.String("gamma", "0.01", "risk aversion")
	volSq := flag.String("volSq", "0.0001", "volatility squared")
	intensity := flag.String("k", "1.5", "arrival intensity")
	ratio := flag.String("ratio", "0.5", "target quote ratio")
	flag.Parse()

	grid, err := market.NewGrid(fixed.One())
	if err != nil {
		log.Fatal(err)
	}
	venue := market.NewSimVenue(grid, market.PriceLimit(*startLimit))

	params := pricing.Params{
		RiskAversion:     mustFixed(*gamma),
		VolatilitySq:     mustFixed(*volSq),
		ArrivalIntensity: mustFixed(*intensity),
		TargetRatio:      mustFixed(*ratio),
	}
	quoter, err := quote.NewModel(venue, grid, params)
	if err != nil {
		log.Fatal(err)
	}

	eng, err := engine.New(engine.Config{
		MarketID: "SIM",
		Operator: "sim",
		Width:    fixed.One(),
	}, engine.Components{Venue: venue, Quoter: quoter, Grid: grid})
	if err != nil {
		log.Fatal(err)
	}

	mem := journal.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.NewRecorder(mem, eng, nil).Run(ctx)

	shares, err := eng.Seed("sim", market.Amount(*baseDeposit), market.Amount(*quoteDeposit))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("seeded %d shares against %d base / %d quote\n", shares, *baseDeposit, *quoteDeposit)

	rng := rand.New(rand.NewSource(*seed))
	traded := market.PriceLimit(*startLimit)
	for i := 0; i < *ticks; i++ {
		// Random walk, one increment per tick.
		traded += market.PriceLimit(rng.Intn(3) - 1)
		if traded < 2 {
			traded = 2
		}
		venue.SetTradedLimit(traded)

		// Fills arrive when the market walks into a resting order.
		bid, ask := eng.RestingOrders()
		if bid != nil && traded <= bid.Limit {
			fillSome(rng, venue, bid.ID)
		}
		if ask != nil && traded >= ask.Limit {
			fillSome(rng, venue, ask.ID)
		}

		if err := eng.TriggerCycle(); err != nil {
			fmt.Printf("tick %d traded=%d cycle error: %v\n", i, traded, err)
			continue
		}
		bid, ask = eng.RestingOrders()
		fmt.Printf("tick %d traded=%d bid=%s ask=%s reserves=%+v\n",
			i, traded, limitOf(bid), limitOf(ask), eng.Reserves())
	}

	if err := eng.ManualCollect("sim"); err != nil {
		log.Fatal(err)
	}
	base, quoteOut, err := eng.Withdraw("sim", shares)
	if err != nil {
		log.Fatal(err)
	}
	placed, collected := venue.Stats()
	fmt.Printf("final: withdrew %d base / %d quote, %d placed, %d collected, %d events journaled\n",
		base, quoteOut, placed, collected, mem.Len())
}

func fillSome(rng *rand.Rand, venue *market.SimVenue, id market.OrderID) {
	amount := market.Amount(rng.Intn(500) + 1)
	if err := venue.Fill(id, amount); err != nil {
		log.Fatal(err)
	}
}

func limitOf(o *market.RestingOrder) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%d", o.Limit)
}

func mustFixed(s string) fixed.Fixed {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal(err)
	}
	f, err := fixed.FromDecimal(d)
	if err != nil {
		log.Fatal(err)
	}
	return f
}

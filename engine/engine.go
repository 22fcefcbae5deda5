// Package engine contains the order lifecycle manager: the cancel/replace
// state machine that keeps one resting bid and one resting ask against the
// quote engine's target, plus the pooled deposit/withdraw surface. Every
// mutating entry point serializes on one mutex, so cycles and share
// operations always observe consistent reserves.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liquidity-engine/fixed"
	"liquidity-engine/infrastructure/logger"
	"liquidity-engine/infrastructure/monitor"
	"liquidity-engine/ledger"
	"liquidity-engine/market"
	"liquidity-engine/pricing"
	"liquidity-engine/quote"
)

var (
	ErrUnauthorized = errors.New("engine: caller lacks required role")
	ErrNotTunable   = errors.New("engine: active strategy takes no parameters")
)

// Config holds the engine's static settings.
type Config struct {
	// MarketID names the venue market the engine quotes on.
	MarketID string
	// MinInterval throttles how often a trigger may act.
	MinInterval time.Duration
	// Operator may pause, collect manually and change parameters. For a
	// non-public pool it is also the only caller allowed to seed/deposit.
	Operator string
	// PublicPool opens seed/deposit to any caller.
	PublicPool bool
	// Width is the batch price width passed to the venue's rate function.
	Width fixed.Fixed
}

func (c Config) validate() error {
	if c.MarketID == "" {
		return errors.New("engine: market id is required")
	}
	if c.Operator == "" {
		return errors.New("engine: operator is required")
	}
	return nil
}

// Components are the engine's collaborators. Venue, Quoter and Grid are
// required; the rest default to inert implementations.
type Components struct {
	Venue     market.Venue
	Quoter    quote.Quoter
	Grid      market.Grid
	Pool      *ledger.Pool
	Clock     Clock
	Logger    *logger.Logger
	Monitor   *monitor.Monitor
	Publisher *Publisher
}

// Engine owns the strategy state: free reserves, the two resting orders, the
// share pool, the pause flag and the trigger timer.
type Engine struct {
	cfg    Config
	venue  market.Venue
	quoter quote.Quoter
	grid   market.Grid
	pool   *ledger.Pool
	clock  Clock
	log    *logger.Logger
	mon    *monitor.Monitor
	pub    *Publisher

	mu          sync.Mutex
	reserves    market.Reserves
	bid         *market.RestingOrder
	ask         *market.RestingOrder
	paused      bool
	lastTrigger time.Time
}

// New wires an engine.
func New(cfg Config, comps Components) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if comps.Venue == nil || comps.Quoter == nil {
		return nil, errors.New("engine: venue and quoter are required")
	}
	if comps.Grid.Tick.IsZero() {
		return nil, market.ErrBadTick
	}
	if comps.Pool == nil {
		comps.Pool = ledger.NewPool()
	}
	if comps.Clock == nil {
		comps.Clock = NowUTC
	}
	if comps.Logger == nil {
		comps.Logger = logger.Nop()
	}
	if comps.Publisher == nil {
		comps.Publisher = NewPublisher()
	}
	return &Engine{
		cfg:    cfg,
		venue:  comps.Venue,
		quoter: comps.Quoter,
		grid:   comps.Grid,
		pool:   comps.Pool,
		clock:  comps.Clock,
		log:    comps.Logger,
		mon:    comps.Monitor,
		pub:    comps.Publisher,
	}, nil
}

// Events exposes the event stream.
func (e *Engine) Events() *Publisher { return e.pub }

// Reserves returns the current free reserves.
func (e *Engine) Reserves() market.Reserves {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserves
}

// RestingOrders returns copies of the live order identities; nil means the
// side is empty.
func (e *Engine) RestingOrders() (bid, ask *market.RestingOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bid != nil {
		b := *e.bid
		bid = &b
	}
	if e.ask != nil {
		a := *e.ask
		ask = &a
	}
	return bid, ask
}

// LastTrigger returns when a cycle last acted.
func (e *Engine) LastTrigger() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTrigger
}

// Paused reports the pause flag.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// TotalShares returns the share supply.
func (e *Engine) TotalShares() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.TotalShares()
}

// BalanceOf returns a holder's shares.
func (e *Engine) BalanceOf(h ledger.Holder) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.BalanceOf(h)
}

// Pause stops cycles until Unpause. Operator only.
func (e *Engine) Pause(caller string) error {
	if caller != e.cfg.Operator {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.log.Info("engine paused", zap.String("caller", caller))
	e.pub.Publish(Event{Type: EventPaused, Time: e.clock.Now()})
	return nil
}

// Unpause re-enables cycles. Operator only.
func (e *Engine) Unpause(caller string) error {
	if caller != e.cfg.Operator {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.log.Info("engine unpaused", zap.String("caller", caller))
	e.pub.Publish(Event{Type: EventUnpaused, Time: e.clock.Now()})
	return nil
}

// SetQuoteParameters swaps the pricing parameters on a tunable strategy.
// Operator only; the update is validated before it is applied.
func (e *Engine) SetQuoteParameters(caller string, p pricing.Params) error {
	if caller != e.cfg.Operator {
		return ErrUnauthorized
	}
	setter, ok := e.quoter.(quote.ParamSetter)
	if !ok {
		return ErrNotTunable
	}
	if err := setter.SetParameters(p); err != nil {
		return err
	}
	e.log.Info("quote parameters updated", zap.String("caller", caller))
	e.pub.Publish(Event{
		Type: EventParams,
		Time: e.clock.Now(),
		Params: &ParamsChange{
			RiskAversion:     p.RiskAversion.String(),
			VolatilitySq:     p.VolatilitySq.String(),
			ArrivalIntensity: p.ArrivalIntensity.String(),
			TargetRatio:      p.TargetRatio.String(),
		},
	})
	return nil
}

// Seed makes the first deposit, minting base-denominated shares capped by
// the binding asset at the venue's current rate.
func (e *Engine) Seed(caller string, base, quoteAmt market.Amount) (uint64, error) {
	if err := e.depositAllowed(caller); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	quoteInBase, err := e.quoteToBaseLocked(quoteAmt)
	if err != nil {
		return 0, err
	}
	shares, err := e.pool.Seed(ledger.Holder(caller), base, quoteInBase)
	if err != nil {
		return 0, err
	}
	e.reserves.Base += base
	e.reserves.Quote += quoteAmt
	e.afterShareChangeLocked()
	e.log.Info("pool seeded",
		zap.String("holder", caller),
		zap.Uint64("shares", shares),
		zap.Uint64("base", uint64(base)),
		zap.Uint64("quote", uint64(quoteAmt)))
	e.pub.Publish(Event{
		Type:   EventSharesMinted,
		Time:   e.clock.Now(),
		Shares: &ShareTransfer{Holder: caller, Shares: shares, Base: base, Quote: quoteAmt},
	})
	return shares, nil
}

// Deposit mints pro-rata shares against the current reserves.
func (e *Engine) Deposit(caller string, base, quoteAmt market.Amount) (uint64, error) {
	if err := e.depositAllowed(caller); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	shares, err := e.pool.Deposit(ledger.Holder(caller), base, quoteAmt, e.reserves)
	if err != nil {
		return 0, err
	}
	e.reserves.Base += base
	e.reserves.Quote += quoteAmt
	e.afterShareChangeLocked()
	e.log.Info("deposit",
		zap.String("holder", caller),
		zap.Uint64("shares", shares),
		zap.Uint64("base", uint64(base)),
		zap.Uint64("quote", uint64(quoteAmt)))
	e.pub.Publish(Event{
		Type:   EventSharesMinted,
		Time:   e.clock.Now(),
		Shares: &ShareTransfer{Holder: caller, Shares: shares, Base: base, Quote: quoteAmt},
	})
	return shares, nil
}

// Withdraw burns shares for the pro-rata cut of free reserves. Always open
// to the share holder.
func (e *Engine) Withdraw(caller string, shares uint64) (market.Amount, market.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base, quoteAmt, err := e.pool.Withdraw(ledger.Holder(caller), shares, e.reserves)
	if err != nil {
		return 0, 0, err
	}
	e.reserves.Base -= base
	e.reserves.Quote -= quoteAmt
	e.afterShareChangeLocked()
	e.log.Info("withdraw",
		zap.String("holder", caller),
		zap.Uint64("shares", shares),
		zap.Uint64("base", uint64(base)),
		zap.Uint64("quote", uint64(quoteAmt)))
	e.pub.Publish(Event{
		Type:   EventSharesBurned,
		Time:   e.clock.Now(),
		Shares: &ShareTransfer{Holder: caller, Shares: shares, Base: base, Quote: quoteAmt},
	})
	return base, quoteAmt, nil
}

func (e *Engine) depositAllowed(caller string) error {
	if !e.cfg.PublicPool && caller != e.cfg.Operator {
		return ErrUnauthorized
	}
	return nil
}

// quoteToBaseLocked converts a quote amount into base units through the
// venue's rate at the current traded limit.
func (e *Engine) quoteToBaseLocked(quoteAmt market.Amount) (market.Amount, error) {
	traded, err := e.venue.CurrentTradedLimit(e.cfg.MarketID)
	if err != nil {
		return 0, fmt.Errorf("current traded limit: %w", err)
	}
	price, err := e.venue.BaseToQuote(traded, e.cfg.Width, fixed.One())
	if err != nil {
		return 0, fmt.Errorf("exchange rate: %w", err)
	}
	q, err := fixed.FromUint(uint64(quoteAmt))
	if err != nil {
		return 0, err
	}
	baseEq, err := q.Div(price)
	if err != nil {
		return 0, fmt.Errorf("exchange rate: %w", err)
	}
	return market.Amount(baseEq.Floor()), nil
}

func (e *Engine) afterShareChangeLocked() {
	if e.mon == nil {
		return
	}
	e.mon.SetShareSupply(e.pool.TotalShares())
	e.mon.SetReserves(uint64(e.reserves.Base), uint64(e.reserves.Quote))
}

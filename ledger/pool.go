// Package ledger implements proportional-share accounting over the pooled
// base/quote reserves. All math is integer, truncating toward zero, so a
// withdrawer can never round in their own favor.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"liquidity-engine/market"
)

var (
	ErrAlreadySeeded      = errors.New("ledger: pool already seeded")
	ErrNotSeeded          = errors.New("ledger: pool not seeded")
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
	ErrZeroShares         = errors.New("ledger: contribution too small to mint shares")
	ErrInvalidState       = errors.New("ledger: reserves inconsistent with outstanding shares")
	ErrShareOverflow      = errors.New("ledger: share supply overflow")
)

// Holder identifies a share owner.
type Holder string

// Pool tracks proportional claims on the strategy's reserves. The pool never
// holds the reserves themselves; callers pass the current reserve levels in.
// Invariant: the balances always sum to the total supply, and a zero balance
// is deleted rather than stored.
type Pool struct {
	total    uint64
	balances map[Holder]uint64
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{balances: make(map[Holder]uint64)}
}

// TotalShares returns the outstanding supply.
func (p *Pool) TotalShares() uint64 { return p.total }

// BalanceOf returns a holder's shares; absent holders read as zero.
func (p *Pool) BalanceOf(h Holder) uint64 { return p.balances[h] }

// Holders returns the number of holders with a positive balance.
func (p *Pool) Holders() int { return len(p.balances) }

// Seed mints the first shares. Shares are denominated in base units: the
// mint is min(base, quoteInBase), where quoteInBase is the quote contribution
// already converted through the venue's exchange rate. Tying the count to the
// binding asset blocks first-depositor share inflation.
func (p *Pool) Seed(h Holder, base market.Amount, quoteInBase market.Amount) (uint64, error) {
	if p.total != 0 {
		return 0, ErrAlreadySeeded
	}
	shares := uint64(base)
	if uint64(quoteInBase) < shares {
		shares = uint64(quoteInBase)
	}
	if shares == 0 {
		return 0, ErrZeroShares
	}
	p.total = shares
	p.balances[h] = shares
	return shares, nil
}

// Deposit mints pro-rata shares against the current reserves:
// min(base*total/baseRes, quote*total/quoteRes), truncating. A zero reserve
// with outstanding shares is an inconsistent state and is rejected.
func (p *Pool) Deposit(h Holder, base, quote market.Amount, reserves market.Reserves) (uint64, error) {
	if p.total == 0 {
		return 0, ErrNotSeeded
	}
	if reserves.Base == 0 || reserves.Quote == 0 {
		return 0, fmt.Errorf("%w: base=%d quote=%d total=%d", ErrInvalidState, reserves.Base, reserves.Quote, p.total)
	}

	byBase, err := mulDiv(uint64(base), p.total, uint64(reserves.Base))
	if err != nil {
		return 0, err
	}
	byQuote, err := mulDiv(uint64(quote), p.total, uint64(reserves.Quote))
	if err != nil {
		return 0, err
	}
	shares := byBase
	if byQuote < shares {
		shares = byQuote
	}
	if shares == 0 {
		return 0, ErrZeroShares
	}
	if p.total+shares < p.total {
		return 0, ErrShareOverflow
	}
	p.total += shares
	p.balances[h] += shares
	return shares, nil
}

// Withdraw burns shares and returns shares*reserve/total per asset,
// truncating toward zero.
func (p *Pool) Withdraw(h Holder, shares uint64, reserves market.Reserves) (base, quote market.Amount, err error) {
	if shares == 0 {
		return 0, 0, ErrZeroShares
	}
	bal := p.balances[h]
	if shares > bal {
		return 0, 0, fmt.Errorf("%w: have %d, want %d", ErrInsufficientShares, bal, shares)
	}

	outBase, err := mulDiv(shares, uint64(reserves.Base), p.total)
	if err != nil {
		return 0, 0, err
	}
	outQuote, err := mulDiv(shares, uint64(reserves.Quote), p.total)
	if err != nil {
		return 0, 0, err
	}

	if bal == shares {
		delete(p.balances, h)
	} else {
		p.balances[h] = bal - shares
	}
	p.total -= shares
	return market.Amount(outBase), market.Amount(outQuote), nil
}

// mulDiv computes a*b/c with a 256-bit intermediate, truncating. The result
// must fit back into 64 bits.
func mulDiv(a, b, c uint64) (uint64, error) {
	var prod uint256.Int
	prod.Mul(uint256.NewInt(a), uint256.NewInt(b))
	prod.Div(&prod, uint256.NewInt(c))
	if !prod.IsUint64() {
		return 0, ErrShareOverflow
	}
	return prod.Uint64(), nil
}

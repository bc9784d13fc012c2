// Package margin tracks external token balances outside any single market:
// deposits land here, markets draw isolated collateral from here, and claims
// return here before withdrawal.
package margin

import (
	"errors"
	"sync"

	"PerpSettle/internal/fixed"
)

var (
	ErrInsufficientBalance = errors.New("margin: insufficient balance")
	ErrNegativeAmount      = errors.New("margin: amount must be positive")
)

// Ledger is the cross-margin balance book. Each account carries one free
// balance plus per-market isolated balances.
type Ledger struct {
	mu       sync.Mutex
	free     map[string]fixed.Dec
	isolated map[string]map[string]fixed.Dec // account -> market -> balance
}

func NewLedger() *Ledger {
	return &Ledger{
		free:     make(map[string]fixed.Dec),
		isolated: make(map[string]map[string]fixed.Dec),
	}
}

// Deposit credits the account's free balance.
func (l *Ledger) Deposit(account string, amount fixed.Dec) error {
	if amount.Sign() <= 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.free[account] = l.free[account].Add(amount)
	return nil
}

// Withdraw debits the account's free balance.
func (l *Ledger) Withdraw(account string, amount fixed.Dec) error {
	if amount.Sign() <= 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.free[account] < amount {
		return ErrInsufficientBalance
	}
	l.free[account] = l.free[account].Sub(amount)
	return nil
}

// Isolate moves balance between the free pool and a market's isolated slot.
// A positive amount isolates, a negative amount releases.
func (l *Ledger) Isolate(account, market string, amount fixed.Dec) error {
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isolated[account] == nil {
		l.isolated[account] = make(map[string]fixed.Dec)
	}
	if amount.Sign() > 0 {
		if l.free[account] < amount {
			return ErrInsufficientBalance
		}
		l.free[account] = l.free[account].Sub(amount)
		l.isolated[account][market] = l.isolated[account][market].Add(amount)
		return nil
	}

	release := amount.Neg()
	if l.isolated[account][market] < release {
		return ErrInsufficientBalance
	}
	l.isolated[account][market] = l.isolated[account][market].Sub(release)
	l.free[account] = l.free[account].Add(release)
	return nil
}

// Credit adds settlement proceeds (claims, fee payouts) to the free balance.
// Unlike Deposit it accepts zero and is never user-initiated.
func (l *Ledger) Credit(account string, amount fixed.Dec) {
	if amount.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.free[account] = l.free[account].Add(amount)
}

// Balance returns the account's free balance.
func (l *Ledger) Balance(account string) fixed.Dec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.free[account]
}

// IsolatedBalance returns the account's isolated balance in one market.
func (l *Ledger) IsolatedBalance(account, market string) fixed.Dec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isolated[account][market]
}

// Total returns free plus all isolated balances for the account.
func (l *Ledger) Total(account string) fixed.Dec {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.free[account]
	for _, b := range l.isolated[account] {
		total = total.Add(b)
	}
	return total
}

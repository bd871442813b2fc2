package vesting

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// custodyAccount is the ledger account holding committed-but-unclaimed
// tokens.
const custodyAccount = "vesting:custody"

// MemoryLedger is an in-memory TokenLedger for tests and standalone
// development mode. Balances never go negative; a debit past zero fails the
// transfer.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

// Credit seeds an account balance, saturating at the maximum rather than
// wrapping. Test and dev setup only.
func (l *MemoryLedger) Credit(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account]+amount < l.balances[account] {
		l.balances[account] = math.MaxUint64
		return
	}
	l.balances[account] += amount
}

// Balance returns the current balance of an account.
func (l *MemoryLedger) Balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *MemoryLedger) TransferInto(ctx context.Context, from string, amount uint64) error {
	return l.transfer(from, custodyAccount, amount)
}

func (l *MemoryLedger) TransferOut(ctx context.Context, to string, amount uint64) error {
	return l.transfer(custodyAccount, to, amount)
}

func (l *MemoryLedger) transfer(from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("insufficient balance on %s: have %d, need %d", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

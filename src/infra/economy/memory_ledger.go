package economy

import (
	"context"
	"sync"

	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// MemoryLedger keeps balances in process. Unknown users start with
// StartingCoins so local setups can send gifts right away.
type MemoryLedger struct {
	mu            sync.RWMutex
	balances      map[shared.PlayerID]economy.Amount
	applied       map[shared.IdempotencyKey]struct{}
	startingCoins int64
}

func NewMemoryLedger(startingCoins int64) *MemoryLedger {
	return &MemoryLedger{
		balances:      make(map[shared.PlayerID]economy.Amount),
		applied:       make(map[shared.IdempotencyKey]struct{}),
		startingCoins: startingCoins,
	}
}

// SetBalance overrides a user's balance.
func (l *MemoryLedger) SetBalance(user shared.PlayerID, amount economy.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[user] = amount
}

func (l *MemoryLedger) Balance(ctx context.Context, user shared.PlayerID) (economy.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(user), nil
}

func (l *MemoryLedger) balanceLocked(user shared.PlayerID) economy.Amount {
	balance, exists := l.balances[user]
	if !exists {
		return economy.Amount{Coins: l.startingCoins}
	}
	return balance
}

// Credit applies amount once per idempotency key.
func (l *MemoryLedger) Credit(ctx context.Context, user shared.PlayerID, amount economy.Amount, reason economy.Reason, key shared.IdempotencyKey) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.applied[key]; done {
		return nil
	}
	balance := l.balanceLocked(user)
	balance.Coins += amount.Coins
	balance.Diamonds += amount.Diamonds
	l.balances[user] = balance
	l.applied[key] = struct{}{}
	return nil
}

func (l *MemoryLedger) Debit(ctx context.Context, user shared.PlayerID, coins int64, reason economy.Reason) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if coins <= 0 {
		return economy.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(user)
	if balance.Coins < coins {
		return economy.ErrInsufficientFunds
	}
	balance.Coins -= coins
	l.balances[user] = balance
	return nil
}

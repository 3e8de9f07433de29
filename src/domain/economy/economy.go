package economy

import (
	"context"
	"fmt"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Amount is a coin/diamond pair moved through the ledger.
type Amount struct {
	Coins    int64
	Diamonds int64
}

// Validate requires a positive amount with no negative part.
func (a Amount) Validate() error {
	if a.Coins < 0 || a.Diamonds < 0 || (a.Coins == 0 && a.Diamonds == 0) {
		return ErrInvalidAmount
	}
	return nil
}

// Reason tags a ledger movement for auditing.
type Reason string

const (
	ReasonBattleReward Reason = "battle_reward"
	ReasonGift         Reason = "battle_gift"
)

// Ledger holds coin and diamond balances. Credit must be safe to retry
// with the same idempotency key.
type Ledger interface {
	Credit(ctx context.Context, user shared.PlayerID, amount Amount, reason Reason, key shared.IdempotencyKey) error
	Debit(ctx context.Context, user shared.PlayerID, coins int64, reason Reason) error
}

// Catalog prices gifts.
type Catalog interface {
	Price(ctx context.Context, gift shared.GiftID) (int64, error)
}

var (
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	ErrGiftNotFound      = fmt.Errorf("%w: gift not found", shared.ErrNotFound)
	ErrInsufficientFunds = fmt.Errorf("%w: balance too low", shared.ErrInsufficientFunds)
	ErrLedgerUnavailable = fmt.Errorf("%w: economy ledger unavailable", shared.ErrDependency)
)

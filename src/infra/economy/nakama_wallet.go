package economy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const (
	walletKeyCoins    = "coins"
	walletKeyDiamonds = "diamonds"
	payoutCollection  = "pkbattle_payouts"
)

// NakamaWallet implements economy.Ledger on Nakama user wallets. Applied
// idempotency keys are remembered as storage objects owned by the user.
type NakamaWallet struct {
	nk runtime.NakamaModule
}

func NewNakamaWallet(nk runtime.NakamaModule) *NakamaWallet {
	return &NakamaWallet{nk: nk}
}

func (w *NakamaWallet) Credit(ctx context.Context, user shared.PlayerID, amount economy.Amount, reason economy.Reason, key shared.IdempotencyKey) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	seen, err := w.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: payoutCollection,
		Key:        string(key),
		UserID:     string(user),
	}})
	if err != nil {
		return fmt.Errorf("%w: %w", economy.ErrLedgerUnavailable, err)
	}
	if len(seen) > 0 {
		return nil
	}

	changeset := map[string]int64{
		walletKeyCoins:    amount.Coins,
		walletKeyDiamonds: amount.Diamonds,
	}
	metadata := map[string]interface{}{
		"reason":          string(reason),
		"idempotency_key": string(key),
	}
	if _, _, err := w.nk.WalletUpdate(ctx, string(user), changeset, metadata, true); err != nil {
		return fmt.Errorf("%w: %w", economy.ErrLedgerUnavailable, err)
	}

	marker, _ := json.Marshal(map[string]any{"coins": amount.Coins, "diamonds": amount.Diamonds})
	if _, err := w.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      payoutCollection,
		Key:             string(key),
		UserID:          string(user),
		Value:           string(marker),
		PermissionRead:  0,
		PermissionWrite: 0,
	}}); err != nil {
		return fmt.Errorf("%w: record payout marker: %w", economy.ErrLedgerUnavailable, err)
	}
	return nil
}

func (w *NakamaWallet) Debit(ctx context.Context, user shared.PlayerID, coins int64, reason economy.Reason) error {
	if coins <= 0 {
		return economy.ErrInvalidAmount
	}
	account, err := w.nk.AccountGetId(ctx, string(user))
	if err != nil {
		return fmt.Errorf("%w: %w", economy.ErrLedgerUnavailable, err)
	}
	wallet := make(map[string]int64)
	if raw := account.GetWallet(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &wallet); err != nil {
			return fmt.Errorf("%w: decode wallet: %w", economy.ErrLedgerUnavailable, err)
		}
	}
	if wallet[walletKeyCoins] < coins {
		return economy.ErrInsufficientFunds
	}
	changeset := map[string]int64{walletKeyCoins: -coins}
	metadata := map[string]interface{}{"reason": string(reason)}
	if _, _, err := w.nk.WalletUpdate(ctx, string(user), changeset, metadata, true); err != nil {
		return fmt.Errorf("%w: %w", economy.ErrLedgerUnavailable, err)
	}
	return nil
}

package battle

import (
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// Tier is the coin payout for the winner and loser of one battle type.
type Tier struct {
	WinnerCoins int64
	LoserCoins  int64
}

// RewardTable maps each battle type to its payout tier.
var RewardTable = map[Type]Tier{
	TypeQuick:    {WinnerCoins: 500, LoserCoins: 100},
	TypeStandard: {WinnerCoins: 1000, LoserCoins: 300},
	TypeRanked:   {WinnerCoins: 2500, LoserCoins: 500},
}

// AmountForCoins derives diamonds as a tenth of coins, rounded down.
func AmountForCoins(coins int64) economy.Amount {
	return economy.Amount{Coins: coins, Diamonds: coins / 10}
}

// RewardShare is one host's payout and whether the ledger accepted it.
type RewardShare struct {
	UserID shared.PlayerID
	RoomID shared.RoomID
	Amount economy.Amount
	Paid   bool
}

// Rewards is written once at settlement; only the Paid flags change afterwards.
type Rewards struct {
	Winner RewardShare
	Loser  RewardShare
}

// AllPaid reports whether both shares reached the ledger.
func (r *Rewards) AllPaid() bool {
	return r != nil && r.Winner.Paid && r.Loser.Paid
}

// ComputeRewards builds the payout for a decided battle. Draws return nil.
func ComputeRewards(b *Battle) *Rewards {
	winner, loser := b.Winner(), b.Loser()
	if winner == nil || loser == nil {
		return nil
	}
	tier, ok := RewardTable[b.Type]
	if !ok {
		return nil
	}
	return &Rewards{
		Winner: RewardShare{UserID: winner.HostID, RoomID: winner.RoomID, Amount: AmountForCoins(tier.WinnerCoins)},
		Loser:  RewardShare{UserID: loser.HostID, RoomID: loser.RoomID, Amount: AmountForCoins(tier.LoserCoins)},
	}
}

package history

import (
	"fmt"
	"time"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Result is a host's outcome in one settled battle.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

func (r Result) Validate() error {
	switch r {
	case ResultWin, ResultLoss, ResultDraw:
		return nil
	}
	return fmt.Errorf("%w: unknown battle result %q", shared.ErrValidation, string(r))
}

// UserBattleHistory aggregates a host's settled battles.
type UserBattleHistory struct {
	UserID           shared.PlayerID
	TotalBattles     int
	Wins             int
	Losses           int
	Draws            int
	CurrentStreak    int
	BestStreak       int
	HighestScore     int64
	TotalContributed int64
	UpdatedAt        time.Time
}

func New(userID shared.PlayerID) (*UserBattleHistory, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	return &UserBattleHistory{UserID: userID}, nil
}

// Record folds one result into the counters. A draw keeps the streak as is.
func (h *UserBattleHistory) Record(result Result, score int64, now time.Time) error {
	if err := result.Validate(); err != nil {
		return err
	}
	if score < 0 {
		return fmt.Errorf("%w: score cannot be negative", shared.ErrValidation)
	}
	h.TotalBattles++
	switch result {
	case ResultWin:
		h.Wins++
		h.CurrentStreak++
		if h.CurrentStreak > h.BestStreak {
			h.BestStreak = h.CurrentStreak
		}
	case ResultLoss:
		h.Losses++
		h.CurrentStreak = 0
	case ResultDraw:
		h.Draws++
	}
	if score > h.HighestScore {
		h.HighestScore = score
	}
	h.TotalContributed += score
	h.UpdatedAt = now
	return nil
}

// WinRate is wins over total battles, zero when none were played.
func (h *UserBattleHistory) WinRate() float64 {
	if h.TotalBattles == 0 {
		return 0
	}
	return float64(h.Wins) / float64(h.TotalBattles)
}

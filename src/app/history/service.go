package history

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// Service owns every write to user battle histories.
type Service struct {
	Repo  history.Repository
	Clock clockwork.Clock
}

func NewService(repo history.Repository) *Service {
	return &Service{
		Repo:  repo,
		Clock: clockwork.NewRealClock(),
	}
}

type RecordResultCommand struct {
	UserID        shared.PlayerID
	Result        history.Result
	ScoreAchieved int64
}

// RecordResult folds one settled battle into the user's history, creating
// it on first use.
func (s *Service) RecordResult(ctx context.Context, cmd RecordResultCommand) (*history.UserBattleHistory, error) {
	if err := cmd.UserID.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.Result.Validate(); err != nil {
		return nil, err
	}
	now := s.Clock.Now().UTC()
	return s.Repo.Update(ctx, cmd.UserID, func(h *history.UserBattleHistory) error {
		return h.Record(cmd.Result, cmd.ScoreAchieved, now)
	})
}

func (s *Service) GetUserHistory(ctx context.Context, userID shared.PlayerID) (*history.UserBattleHistory, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, userID)
}

// Snapshot returns every stored history keyed by user.
func (s *Service) Snapshot(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error) {
	all, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[shared.PlayerID]*history.UserBattleHistory, len(all))
	for _, h := range all {
		out[h.UserID] = h
	}
	return out, nil
}

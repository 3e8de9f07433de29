package leaderboard

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/history"
	domain "github.com/sandai/pkbattle/src/domain/leaderboard"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const DefaultLimit = 50

// HistorySource supplies authoritative win/loss counters.
type HistorySource interface {
	Snapshot(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error)
}

// Service derives the total-score leaderboard from finished battles on
// every call. It keeps no state besides in-flight coalescing.
type Service struct {
	Battles battle.Store
	History HistorySource
	Logger  *zap.Logger

	group singleflight.Group
}

func NewService(battles battle.Store, source HistorySource) *Service {
	return &Service{
		Battles: battles,
		History: source,
		Logger:  zap.NewNop(),
	}
}

// TopByTotalScore ranks hosts by the score their rooms earned across
// finished battles. Concurrent calls with the same limit share one scan;
// a caller that gives up does not cancel the scan for the others.
func (s *Service) TopByTotalScore(ctx context.Context, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.Itoa(limit), func() (any, error) {
		return s.compute(detached, limit)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	entries := res.Val.([]domain.Entry)
	out := make([]domain.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Service) compute(ctx context.Context, limit int) ([]domain.Entry, error) {
	finished, err := s.Battles.ListFinished(ctx)
	if err != nil {
		return nil, err
	}
	tally := domain.NewTally()
	for _, b := range finished {
		if b.SideB == nil {
			continue
		}
		tally.AddScore(b.SideA.HostID, b.SideA.Score)
		tally.AddScore(b.SideB.HostID, b.SideB.Score)
		switch b.Outcome() {
		case battle.OutcomeSideA:
			tally.AddWin(b.SideA.HostID)
			tally.AddLoss(b.SideB.HostID)
		case battle.OutcomeSideB:
			tally.AddWin(b.SideB.HostID)
			tally.AddLoss(b.SideA.HostID)
		default:
			tally.AddDraw(b.SideA.HostID)
			tally.AddDraw(b.SideB.HostID)
		}
	}
	if s.History != nil {
		snapshot, err := s.History.Snapshot(ctx)
		if err != nil {
			s.Logger.Warn("leaderboard falling back to scanned counters", zap.Error(err))
		} else {
			for _, user := range tally.Users() {
				if h, ok := snapshot[user]; ok {
					tally.SetRecord(user, h.Wins, h.Losses, h.Draws)
				}
			}
		}
	}
	return tally.Rank(limit), nil
}

package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apphistory "github.com/sandai/pkbattle/src/app/history"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// HistoryRecorder receives one result per host once a battle is finished.
type HistoryRecorder interface {
	RecordResult(ctx context.Context, cmd apphistory.RecordResultCommand) (*history.UserBattleHistory, error)
}

// Metrics observes settlement outcomes.
type Metrics interface {
	BattleSettled(typ battle.Type, outcome battle.Outcome)
	PayoutFailed(role string)
}

type nopMetrics struct{}

func (nopMetrics) BattleSettled(battle.Type, battle.Outcome) {}
func (nopMetrics) PayoutFailed(string)                       {}

const (
	RoleWinner = "winner"
	RoleLoser  = "loser"
)

// IdempotencyKey tags a payout so ledger retries never pay twice.
func IdempotencyKey(id shared.BattleID, role string) shared.IdempotencyKey {
	return shared.IdempotencyKey(fmt.Sprintf("battle:%s:%s", id, role))
}

// Engine closes battles and distributes rewards exactly once.
type Engine struct {
	Store   battle.Store
	Ledger  economy.Ledger
	History HistoryRecorder
	Metrics Metrics
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

func NewEngine(store battle.Store, ledger economy.Ledger, recorder HistoryRecorder) *Engine {
	return &Engine{
		Store:   store,
		Ledger:  ledger,
		History: recorder,
		Metrics: nopMetrics{},
		Clock:   clockwork.NewRealClock(),
		Logger:  zap.NewNop(),
	}
}

// Finish moves an active battle to finished, records both hosts' results
// and settles it. A finished battle without settledAt retries its unpaid
// shares; anything else is returned unchanged. The caller must hold the
// battle's lock.
func (e *Engine) Finish(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	b, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case battle.StatusActive:
		closed, ok, err := e.close(ctx, b)
		if err != nil || !ok {
			return closed, err
		}
		b = closed
	case battle.StatusFinished:
		if b.Settled() {
			return b, nil
		}
		e.Logger.Info("retrying unsettled battle", zap.String("battle_id", string(b.ID)))
	default:
		return b, nil
	}
	b, err = e.recordHistoryOnce(ctx, b)
	if err != nil {
		return b, err
	}
	return e.settle(ctx, b)
}

// close persists the finished status, winner and reward amounts. Losing the
// compare-and-set returns the stored battle with ok false.
func (e *Engine) close(ctx context.Context, b *battle.Battle) (*battle.Battle, bool, error) {
	expected := b.Version
	next := b.Clone()
	if err := next.Finish(e.Clock.Now().UTC()); err != nil {
		return b, false, err
	}
	next.Rewards = battle.ComputeRewards(next)
	if err := e.Store.Put(ctx, next, expected); err != nil {
		if !errors.Is(err, shared.ErrConflict) {
			return b, false, err
		}
		current, getErr := e.Store.Get(ctx, b.ID)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	return next, true, nil
}

func (e *Engine) settle(ctx context.Context, b *battle.Battle) (*battle.Battle, error) {
	expected := b.Version
	next := b.Clone()
	payErr := e.pay(ctx, next)
	if payErr == nil {
		if err := next.MarkSettled(e.Clock.Now().UTC()); err != nil {
			return b, err
		}
	}
	if err := e.Store.Put(ctx, next, expected); err != nil {
		e.Logger.Error("persist settlement", zap.String("battle_id", string(b.ID)), zap.Error(err))
		if errors.Is(err, shared.ErrConflict) {
			return b, fmt.Errorf("%w: settlement lost a concurrent write", shared.ErrConflict)
		}
		return b, fmt.Errorf("%w: %w", shared.ErrDependency, err)
	}
	if payErr != nil {
		return next, payErr
	}
	e.Metrics.BattleSettled(next.Type, next.Outcome())
	return next, nil
}

// pay credits every unpaid share and flips its Paid flag on success.
func (e *Engine) pay(ctx context.Context, b *battle.Battle) error {
	if b.Rewards == nil {
		return nil
	}
	shares := []struct {
		role  string
		share *battle.RewardShare
	}{
		{RoleWinner, &b.Rewards.Winner},
		{RoleLoser, &b.Rewards.Loser},
	}
	var errs error
	for _, s := range shares {
		if s.share.Paid {
			continue
		}
		key := IdempotencyKey(b.ID, s.role)
		if err := e.Ledger.Credit(ctx, s.share.UserID, s.share.Amount, economy.ReasonBattleReward, key); err != nil {
			e.Logger.Warn("battle payout failed",
				zap.String("battle_id", string(b.ID)),
				zap.String("role", s.role),
				zap.String("user_id", string(s.share.UserID)),
				zap.Error(err),
			)
			e.Metrics.PayoutFailed(s.role)
			errs = multierr.Append(errs, fmt.Errorf("%s payout: %w", s.role, err))
			continue
		}
		s.share.Paid = true
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", shared.ErrDependency, errs)
	}
	return nil
}

// recordHistoryOnce persists the history marker before handing results to
// the recorder, so a payout retry never counts the battle twice.
func (e *Engine) recordHistoryOnce(ctx context.Context, b *battle.Battle) (*battle.Battle, error) {
	if e.History == nil || b.HistoryRecordedAt != nil {
		return b, nil
	}
	expected := b.Version
	next := b.Clone()
	if err := next.MarkHistoryRecorded(e.Clock.Now().UTC()); err != nil {
		return b, err
	}
	if err := e.Store.Put(ctx, next, expected); err != nil {
		e.Logger.Error("persist history marker", zap.String("battle_id", string(b.ID)), zap.Error(err))
		if errors.Is(err, shared.ErrConflict) {
			return b, fmt.Errorf("%w: history marker lost a concurrent write", shared.ErrConflict)
		}
		return b, fmt.Errorf("%w: %w", shared.ErrDependency, err)
	}
	e.recordHistory(ctx, next)
	return next, nil
}

func (e *Engine) recordHistory(ctx context.Context, b *battle.Battle) {
	if b.SideB == nil {
		return
	}
	resultA, resultB := history.ResultDraw, history.ResultDraw
	switch b.Outcome() {
	case battle.OutcomeSideA:
		resultA, resultB = history.ResultWin, history.ResultLoss
	case battle.OutcomeSideB:
		resultA, resultB = history.ResultLoss, history.ResultWin
	}
	cmds := []apphistory.RecordResultCommand{
		{UserID: b.SideA.HostID, Result: resultA, ScoreAchieved: b.SideA.Score},
		{UserID: b.SideB.HostID, Result: resultB, ScoreAchieved: b.SideB.Score},
	}
	for _, cmd := range cmds {
		if _, err := e.History.RecordResult(ctx, cmd); err != nil {
			e.Logger.Error("record battle history",
				zap.String("battle_id", string(b.ID)),
				zap.String("user_id", string(cmd.UserID)),
				zap.Error(err),
			)
		}
	}
}

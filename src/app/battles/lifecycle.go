package battles

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/activity"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// onCountdownElapsed activates a battle whose countdown ran out. A battle
// cancelled in the meantime is left alone.
func (s *Service) onCountdownElapsed(id shared.BattleID) {
	ctx, cancel := callbackContext()
	defer cancel()

	unlock := s.locks.acquire(id)
	defer unlock()

	if _, err := s.activateLocked(ctx, id); err != nil {
		s.Logger.Info("countdown elapsed without activation", zap.String("battle_id", string(id)), zap.Error(err))
	}
}

func (s *Service) activateLocked(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	b, err := s.Battles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != battle.StatusCountdown {
		return b, fmt.Errorf("%w: battle is %s", battle.ErrIllegalTransition, b.Status)
	}
	duration := s.Options.duration(b.Type)
	next := b.Clone()
	if err := next.Activate(s.now(), duration); err != nil {
		return b, err
	}

	key := battleTimerKey(id)
	s.timers.schedule(s.Clock, key, duration, func() { s.onBattleElapsed(id) })
	if err := s.Battles.Put(ctx, next, b.Version); err != nil {
		s.timers.stop(key)
		return b, stateConflict(err)
	}

	s.transitioned(battle.StatusCountdown, battle.StatusActive, next)
	s.record(activity.EventBattleStarted, id, func(e *activity.Event) {
		e.With("ends_at", next.EndedAt.Unix())
	})
	s.publish(ctx, next)
	return next, nil
}

// onBattleElapsed is the end-of-battle timer.
func (s *Service) onBattleElapsed(id shared.BattleID) {
	ctx, cancel := callbackContext()
	defer cancel()

	if _, err := s.finish(ctx, id); err != nil {
		s.Logger.Warn("battle end timer", zap.String("battle_id", string(id)), zap.Error(err))
	}
}

type ForceFinishCommand struct {
	BattleID shared.BattleID
}

// ForceFinish settles a battle ahead of its end timer. Calling it on a
// battle that is already settled returns the battle unchanged.
func (s *Service) ForceFinish(ctx context.Context, cmd ForceFinishCommand) (*battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return nil, err
	}
	return s.finish(ctx, cmd.BattleID)
}

func (s *Service) finish(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	before, err := s.Battles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	after, err := s.Settler.Finish(ctx, id)
	if after == nil {
		return nil, err
	}
	if after.Status.Terminal() {
		s.timers.stop(battleTimerKey(id))
	}
	if before.Status == battle.StatusActive && after.Status == battle.StatusFinished {
		s.transitioned(before.Status, after.Status, after)
		s.record(activity.EventBattleFinished, id, func(e *activity.Event) {
			e.With("winner_room_id", string(after.WinnerRoomID)).
				With("score_a", after.SideA.Score).
				With("score_b", after.SideB.Score)
		})
		s.publish(ctx, after)
	}
	if errors.Is(err, shared.ErrDependency) {
		s.record(activity.EventPayoutFailed, id, func(e *activity.Event) {
			e.With("error", err.Error())
		})
	}
	return after, err
}

type CancelCommand struct {
	BattleID    shared.BattleID
	RequesterID shared.PlayerID
}

// Cancel stops a battle that has not started yet. Only either host may
// cancel; pending invites are rejected and timers stopped.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (bool, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return false, err
	}
	if err := cmd.RequesterID.Validate(); err != nil {
		return false, err
	}
	unlock := s.locks.acquire(cmd.BattleID)
	defer unlock()

	b, err := s.Battles.Get(ctx, cmd.BattleID)
	if err != nil {
		return false, err
	}
	if !b.IsHost(cmd.RequesterID) {
		return false, battle.ErrNotHost
	}
	now := s.now()
	next := b.Clone()
	if err := next.Cancel(now); err != nil {
		return false, err
	}
	if err := s.Battles.Put(ctx, next, b.Version); err != nil {
		return false, stateConflict(err)
	}
	s.timers.stop(battleTimerKey(b.ID))
	s.rejectPendingLocked(ctx, b.ID)

	s.transitioned(b.Status, battle.StatusCancelled, next)
	s.record(activity.EventBattleCancelled, b.ID, func(e *activity.Event) {
		e.WithActor(cmd.RequesterID, "").With("from_status", string(b.Status))
	})
	s.publish(ctx, next)
	return true, nil
}

func (s *Service) rejectPendingLocked(ctx context.Context, id shared.BattleID) {
	pending, err := s.Invites.ListPendingByBattle(ctx, id)
	if err != nil {
		s.Logger.Warn("list pending invites", zap.String("battle_id", string(id)), zap.Error(err))
		return
	}
	now := s.now()
	for _, inv := range pending {
		s.timers.stop(inviteTimerKey(inv.ID))
		next := inv.Clone()
		if err := next.Reject(now); err != nil {
			continue
		}
		if err := s.Invites.Put(ctx, next, inv.Version); err != nil {
			s.Logger.Warn("reject invite of cancelled battle",
				zap.String("invite_id", string(inv.ID)),
				zap.Error(err),
			)
		}
	}
}

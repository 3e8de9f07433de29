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

type CreateBattleCommand struct {
	SideA battle.SideInfo
	Type  battle.Type
}

// CreateBattle opens a waiting battle hosted by side A.
func (s *Service) CreateBattle(ctx context.Context, cmd CreateBattleCommand) (*battle.Battle, error) {
	if err := cmd.Type.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.SideA.Validate(); err != nil {
		return nil, err
	}
	busy, err := s.roomBusy(ctx, cmd.SideA.RoomID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, battle.ErrRoomBusy
	}
	b, err := battle.NewBattle(s.IDs.BattleID(), cmd.Type, cmd.SideA, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Battles.Create(ctx, b); err != nil {
		return nil, err
	}
	s.record(activity.EventBattleCreated, b.ID, func(e *activity.Event) {
		e.WithActor(cmd.SideA.HostID, cmd.SideA.RoomID).With("type", string(b.Type))
	})
	s.publish(ctx, b)
	return b, nil
}

type InviteCommand struct {
	BattleID shared.BattleID
	ToRoomID shared.RoomID
}

// Invite asks another room to join a waiting battle. The invite expires
// after Options.InviteTTL.
func (s *Service) Invite(ctx context.Context, cmd InviteCommand) (*battle.Invite, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.ToRoomID.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.acquire(cmd.BattleID)
	defer unlock()

	b, err := s.Battles.Get(ctx, cmd.BattleID)
	if err != nil {
		return nil, err
	}
	if b.Status != battle.StatusWaiting {
		return nil, fmt.Errorf("%w: battle is %s", battle.ErrNotWaiting, b.Status)
	}
	inv, err := battle.NewInvite(s.IDs.InviteID(), b, cmd.ToRoomID, s.now(), s.Options.InviteTTL)
	if err != nil {
		return nil, err
	}
	key := inviteTimerKey(inv.ID)
	s.timers.schedule(s.Clock, key, s.Options.InviteTTL, func() { s.expireInvite(inv.ID) })
	if err := s.Invites.Create(ctx, inv); err != nil {
		s.timers.stop(key)
		return nil, err
	}
	s.record(activity.EventInviteSent, b.ID, func(e *activity.Event) {
		e.WithActor(b.SideA.HostID, b.SideA.RoomID).With("invite_id", string(inv.ID)).With("to_room_id", string(inv.ToRoomID))
	})
	return inv, nil
}

type AcceptCommand struct {
	InviteID shared.InviteID
	// SideB.RoomID may be left empty; it defaults to the invited room.
	SideB battle.SideInfo
}

// Accept seats the invited room as side B and starts the countdown.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*battle.Battle, error) {
	if err := cmd.InviteID.Validate(); err != nil {
		return nil, err
	}
	found, err := s.Invites.Get(ctx, cmd.InviteID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.acquire(found.BattleID)
	defer unlock()

	inv, err := s.Invites.Get(ctx, cmd.InviteID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case inv.Status == battle.InviteExpired:
		return nil, battle.ErrInviteExpired
	case inv.Status != battle.InvitePending:
		return nil, fmt.Errorf("%w: invite is %s", battle.ErrInviteNotPending, inv.Status)
	case inv.Overdue(now):
		s.expireLocked(ctx, inv)
		return nil, battle.ErrInviteExpired
	}

	sideB := cmd.SideB
	if sideB.RoomID == "" {
		sideB.RoomID = inv.ToRoomID
	}
	if sideB.RoomID != inv.ToRoomID {
		return nil, fmt.Errorf("%w: invite was sent to room %s", shared.ErrValidation, inv.ToRoomID)
	}
	if err := sideB.Validate(); err != nil {
		return nil, err
	}

	b, err := s.Battles.Get(ctx, inv.BattleID)
	if err != nil {
		return nil, err
	}
	if b.Status != battle.StatusWaiting {
		return nil, fmt.Errorf("%w: battle is %s", battle.ErrNotWaiting, b.Status)
	}
	busy, err := s.roomBusy(ctx, sideB.RoomID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, battle.ErrRoomBusy
	}

	nextInvite := inv.Clone()
	if err := nextInvite.Accept(now); err != nil {
		return nil, err
	}
	next := b.Clone()
	if err := next.Accept(sideB, now); err != nil {
		return nil, err
	}

	key := battleTimerKey(b.ID)
	s.timers.schedule(s.Clock, key, s.Options.Countdown, func() { s.onCountdownElapsed(b.ID) })
	if err := s.Invites.Put(ctx, nextInvite, inv.Version); err != nil {
		s.timers.stop(key)
		return nil, stateConflict(err)
	}
	if err := s.Battles.Put(ctx, next, b.Version); err != nil {
		s.timers.stop(key)
		s.Logger.Error("invite accepted but battle update failed",
			zap.String("battle_id", string(b.ID)),
			zap.String("invite_id", string(inv.ID)),
			zap.Error(err),
		)
		return nil, stateConflict(err)
	}
	s.timers.stop(inviteTimerKey(inv.ID))

	s.transitioned(battle.StatusWaiting, battle.StatusCountdown, next)
	s.record(activity.EventInviteAccepted, next.ID, func(e *activity.Event) {
		e.WithActor(sideB.HostID, sideB.RoomID).With("invite_id", string(inv.ID))
	})
	s.publish(ctx, next)
	return next, nil
}

type RejectCommand struct {
	InviteID shared.InviteID
}

// Reject declines a pending invite.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*battle.Invite, error) {
	if err := cmd.InviteID.Validate(); err != nil {
		return nil, err
	}
	found, err := s.Invites.Get(ctx, cmd.InviteID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.acquire(found.BattleID)
	defer unlock()

	inv, err := s.Invites.Get(ctx, cmd.InviteID)
	if err != nil {
		return nil, err
	}
	next := inv.Clone()
	if err := next.Reject(s.now()); err != nil {
		return nil, err
	}
	if err := s.Invites.Put(ctx, next, inv.Version); err != nil {
		return nil, stateConflict(err)
	}
	s.timers.stop(inviteTimerKey(inv.ID))
	s.record(activity.EventInviteRejected, inv.BattleID, func(e *activity.Event) {
		e.With("invite_id", string(inv.ID)).With("to_room_id", string(inv.ToRoomID))
	})
	return next, nil
}

// expireInvite is the invite TTL callback.
func (s *Service) expireInvite(id shared.InviteID) {
	ctx, cancel := callbackContext()
	defer cancel()

	found, err := s.Invites.Get(ctx, id)
	if err != nil {
		s.Logger.Warn("expire invite lookup", zap.String("invite_id", string(id)), zap.Error(err))
		return
	}
	unlock := s.locks.acquire(found.BattleID)
	defer unlock()

	inv, err := s.Invites.Get(ctx, id)
	if err != nil {
		s.Logger.Warn("expire invite lookup", zap.String("invite_id", string(id)), zap.Error(err))
		return
	}
	s.expireLocked(ctx, inv)
}

// expireLocked moves a pending invite to expired. Losing the race to an
// accept or reject is a no-op.
func (s *Service) expireLocked(ctx context.Context, inv *battle.Invite) {
	s.timers.stop(inviteTimerKey(inv.ID))
	if inv.Status != battle.InvitePending {
		return
	}
	next := inv.Clone()
	if err := next.Expire(s.now()); err != nil {
		return
	}
	if err := s.Invites.Put(ctx, next, inv.Version); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			s.Logger.Info("invite expiry lost the race", zap.String("invite_id", string(inv.ID)))
			return
		}
		s.Logger.Warn("expire invite", zap.String("invite_id", string(inv.ID)), zap.Error(err))
		return
	}
	s.record(activity.EventInviteExpired, inv.BattleID, func(e *activity.Event) {
		e.With("invite_id", string(inv.ID)).With("to_room_id", string(inv.ToRoomID))
	})
}

package battles

import (
	"context"
	"errors"

	"github.com/sandai/pkbattle/src/domain/activity"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const maxGiftAttempts = 3

type ApplyGiftCommand struct {
	BattleID shared.BattleID
	RoomID   shared.RoomID
	SenderID shared.PlayerID
	Value    int64
}

// ApplyGift adds value to the side playing in RoomID and appends the gift
// event in the same store write.
func (s *Service) ApplyGift(ctx context.Context, cmd ApplyGiftCommand) (*battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.acquire(cmd.BattleID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxGiftAttempts; attempt++ {
		b, err := s.Battles.Get(ctx, cmd.BattleID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		next := b.Clone()
		if err := next.ApplyGift(cmd.RoomID, cmd.SenderID, cmd.Value, now); err != nil {
			return nil, err
		}
		gift, err := battle.NewGiftEvent(s.IDs.GiftEventID(), b.ID, cmd.RoomID, cmd.SenderID, cmd.Value, now)
		if err != nil {
			return nil, err
		}
		lastErr = s.Battles.AppendGift(ctx, next, b.Version, gift)
		if lastErr == nil {
			s.Metrics.GiftApplied(next.Type, cmd.Value)
			s.record(activity.EventGiftApplied, next.ID, func(e *activity.Event) {
				e.WithActor(cmd.SenderID, cmd.RoomID).With("value", cmd.Value).With("gift_event_id", string(gift.ID))
			})
			s.publish(ctx, next)
			return next, nil
		}
		if !errors.Is(lastErr, shared.ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

package battle

import (
	"time"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// GiftEvent is one append-only score contribution. Per room the sum of
// values equals the side's score.
type GiftEvent struct {
	ID        shared.GiftEventID
	BattleID  shared.BattleID
	RoomID    shared.RoomID
	SenderID  shared.PlayerID
	Value     int64
	CreatedAt time.Time
}

func NewGiftEvent(id shared.GiftEventID, battleID shared.BattleID, room shared.RoomID, sender shared.PlayerID, value int64, now time.Time) (*GiftEvent, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if value <= 0 {
		return nil, ErrGiftValue
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}
	if err := sender.Validate(); err != nil {
		return nil, err
	}
	return &GiftEvent{
		ID:        id,
		BattleID:  battleID,
		RoomID:    room,
		SenderID:  sender,
		Value:     value,
		CreatedAt: now,
	}, nil
}

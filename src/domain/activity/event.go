package activity

import (
	"errors"
	"time"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// EventName identifies a battle activity.
type EventName string

const (
	EventBattleCreated   EventName = "battle_created"
	EventInviteSent      EventName = "invite_sent"
	EventInviteAccepted  EventName = "invite_accepted"
	EventInviteRejected  EventName = "invite_rejected"
	EventInviteExpired   EventName = "invite_expired"
	EventBattleStarted   EventName = "battle_started"
	EventGiftApplied     EventName = "gift_applied"
	EventBattleCancelled EventName = "battle_cancelled"
	EventBattleFinished  EventName = "battle_finished"
	EventPayoutFailed    EventName = "payout_failed"
)

// Event is an audit record of something that happened to a battle.
type Event struct {
	Name       EventName
	BattleID   shared.BattleID
	UserID     shared.PlayerID
	RoomID     shared.RoomID
	Properties map[string]any
	Timestamp  time.Time
}

// NewEvent creates an activity event. The actor may be empty for timer-driven events.
func NewEvent(name EventName, battleID shared.BattleID, timestamp time.Time) (*Event, error) {
	if name == "" {
		return nil, errors.New("event name cannot be empty")
	}
	if err := battleID.Validate(); err != nil {
		return nil, err
	}
	if timestamp.IsZero() {
		return nil, errors.New("timestamp cannot be zero")
	}
	return &Event{
		Name:       name,
		BattleID:   battleID,
		Properties: make(map[string]any),
		Timestamp:  timestamp,
	}, nil
}

// WithActor attaches the user and room behind the event.
func (e *Event) WithActor(user shared.PlayerID, room shared.RoomID) *Event {
	e.UserID = user
	e.RoomID = room
	return e
}

// With sets one property.
func (e *Event) With(key string, value any) *Event {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
	return e
}

// Validate ensures the event is well-formed.
func (e *Event) Validate() error {
	if e.Name == "" {
		return errors.New("event name is required")
	}
	if err := e.BattleID.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

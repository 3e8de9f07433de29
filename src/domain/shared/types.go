package shared

import (
	"fmt"
	"strings"
)

// ID types keep domain entities distinct while remaining simple strings at runtime.
type (
	PlayerID       string
	RoomID         string
	BattleID       string
	InviteID       string
	GiftEventID    string
	GiftID         string
	IdempotencyKey string
)

// Validate ensures IDs are not blank and normalized.
func (id PlayerID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: player id is required", ErrValidation)
	}
	return nil
}

func (id RoomID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: room id is required", ErrValidation)
	}
	return nil
}

func (id BattleID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: battle id is required", ErrValidation)
	}
	return nil
}

func (id InviteID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: invite id is required", ErrValidation)
	}
	return nil
}

func (id GiftEventID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: gift event id is required", ErrValidation)
	}
	return nil
}

func (id GiftID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: gift id is required", ErrValidation)
	}
	return nil
}

func (key IdempotencyKey) Validate() error {
	if strings.TrimSpace(string(key)) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	return nil
}

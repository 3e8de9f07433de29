package battle

import (
	"fmt"
	"time"

	"github.com/sandai/pkbattle/src/domain/shared"
)

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
	InviteExpired  InviteStatus = "expired"
)

// Invite asks another room to join a waiting battle. It leaves pending once.
type Invite struct {
	ID          shared.InviteID
	BattleID    shared.BattleID
	FromRoomID  shared.RoomID
	ToRoomID    shared.RoomID
	Status      InviteStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
	Version     int64
}

func NewInvite(id shared.InviteID, b *Battle, to shared.RoomID, now time.Time, ttl time.Duration) (*Invite, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if to == b.SideA.RoomID {
		return nil, ErrSameRoom
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: invite ttl must be positive", shared.ErrValidation)
	}
	return &Invite{
		ID:         id,
		BattleID:   b.ID,
		FromRoomID: b.SideA.RoomID,
		ToRoomID:   to,
		Status:     InvitePending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Overdue reports whether the invite can no longer be accepted at now.
func (i *Invite) Overdue(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

func (i *Invite) respond(next InviteStatus, now time.Time) error {
	if i.Status != InvitePending {
		return fmt.Errorf("%w: invite is %s", ErrInviteNotPending, i.Status)
	}
	i.Status = next
	i.RespondedAt = &now
	return nil
}

func (i *Invite) Accept(now time.Time) error {
	if i.Status == InviteExpired {
		return ErrInviteExpired
	}
	if i.Status == InvitePending && i.Overdue(now) {
		return ErrInviteExpired
	}
	return i.respond(InviteAccepted, now)
}

func (i *Invite) Reject(now time.Time) error {
	return i.respond(InviteRejected, now)
}

func (i *Invite) Expire(now time.Time) error {
	return i.respond(InviteExpired, now)
}

func (i *Invite) Clone() *Invite {
	if i == nil {
		return nil
	}
	out := *i
	out.RespondedAt = cloneTime(i.RespondedAt)
	return &out
}

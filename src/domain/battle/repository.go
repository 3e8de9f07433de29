package battle

import (
	"context"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Store persists battles with optimistic concurrency. Put and AppendGift
// succeed only when the stored version equals expectedVersion and return
// ErrVersionConflict otherwise. On success the record's Version is bumped.
type Store interface {
	Get(ctx context.Context, id shared.BattleID) (*Battle, error)
	Create(ctx context.Context, b *Battle) error
	Put(ctx context.Context, b *Battle, expectedVersion int64) error
	// AppendGift writes the battle and appends the gift in one atomic step.
	AppendGift(ctx context.Context, b *Battle, expectedVersion int64, gift *GiftEvent) error
	// ListActive returns every battle not yet finished or cancelled.
	ListActive(ctx context.Context) ([]*Battle, error)
	ListByRoom(ctx context.Context, room shared.RoomID) ([]*Battle, error)
	ListFinished(ctx context.Context) ([]*Battle, error)
	ListGifts(ctx context.Context, id shared.BattleID) ([]*GiftEvent, error)
}

type InviteStore interface {
	Get(ctx context.Context, id shared.InviteID) (*Invite, error)
	Create(ctx context.Context, inv *Invite) error
	Put(ctx context.Context, inv *Invite, expectedVersion int64) error
	ListPendingByBattle(ctx context.Context, id shared.BattleID) ([]*Invite, error)
	ListPending(ctx context.Context) ([]*Invite, error)
}

// Broadcaster pushes battle snapshots to live viewers.
type Broadcaster interface {
	Publish(ctx context.Context, b *Battle) error
}

package battle

import (
	"context"
	"sort"
	"sync"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// MemoryStore implements battle.Store in process. Records are cloned on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	battles map[shared.BattleID]*battle.Battle
	gifts   map[shared.BattleID][]*battle.GiftEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles: make(map[shared.BattleID]*battle.Battle),
		gifts:   make(map[shared.BattleID][]*battle.GiftEvent),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.battles[id]
	if !exists {
		return nil, battle.ErrBattleNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, b *battle.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.battles[b.ID]; exists {
		return battle.ErrDuplicateBattle
	}
	b.Version = 1
	s.battles[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, b *battle.Battle, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putLocked(b, expectedVersion)
}

func (s *MemoryStore) AppendGift(ctx context.Context, b *battle.Battle, expectedVersion int64, gift *battle.GiftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putLocked(b, expectedVersion); err != nil {
		return err
	}
	g := *gift
	s.gifts[b.ID] = append(s.gifts[b.ID], &g)
	return nil
}

func (s *MemoryStore) putLocked(b *battle.Battle, expectedVersion int64) error {
	current, exists := s.battles[b.ID]
	if !exists {
		return battle.ErrBattleNotFound
	}
	if current.Version != expectedVersion {
		return battle.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	s.battles[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*battle.Battle, error) {
	return s.list(func(b *battle.Battle) bool { return !b.Status.Terminal() }), nil
}

func (s *MemoryStore) ListByRoom(ctx context.Context, room shared.RoomID) ([]*battle.Battle, error) {
	return s.list(func(b *battle.Battle) bool { return b.InvolvesRoom(room) }), nil
}

func (s *MemoryStore) ListFinished(ctx context.Context) ([]*battle.Battle, error) {
	return s.list(func(b *battle.Battle) bool { return b.Status == battle.StatusFinished }), nil
}

func (s *MemoryStore) ListGifts(ctx context.Context, id shared.BattleID) ([]*battle.GiftEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gifts := s.gifts[id]
	out := make([]*battle.GiftEvent, 0, len(gifts))
	for _, g := range gifts {
		copied := *g
		out = append(out, &copied)
	}
	return out, nil
}

// list returns matching battles, newest first.
func (s *MemoryStore) list(match func(*battle.Battle) bool) []*battle.Battle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*battle.Battle, 0)
	for _, b := range s.battles {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MemoryInviteStore implements battle.InviteStore in process.
type MemoryInviteStore struct {
	mu      sync.RWMutex
	invites map[shared.InviteID]*battle.Invite
}

func NewMemoryInviteStore() *MemoryInviteStore {
	return &MemoryInviteStore{invites: make(map[shared.InviteID]*battle.Invite)}
}

func (s *MemoryInviteStore) Get(ctx context.Context, id shared.InviteID) (*battle.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invites[id]
	if !exists {
		return nil, battle.ErrInviteNotFound
	}
	return inv.Clone(), nil
}

func (s *MemoryInviteStore) Create(ctx context.Context, inv *battle.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invites[inv.ID]; exists {
		return battle.ErrDuplicateInvite
	}
	inv.Version = 1
	s.invites[inv.ID] = inv.Clone()
	return nil
}

func (s *MemoryInviteStore) Put(ctx context.Context, inv *battle.Invite, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.invites[inv.ID]
	if !exists {
		return battle.ErrInviteNotFound
	}
	if current.Version != expectedVersion {
		return battle.ErrVersionConflict
	}
	inv.Version = expectedVersion + 1
	s.invites[inv.ID] = inv.Clone()
	return nil
}

func (s *MemoryInviteStore) ListPendingByBattle(ctx context.Context, id shared.BattleID) ([]*battle.Invite, error) {
	return s.list(func(inv *battle.Invite) bool {
		return inv.BattleID == id && inv.Status == battle.InvitePending
	}), nil
}

func (s *MemoryInviteStore) ListPending(ctx context.Context) ([]*battle.Invite, error) {
	return s.list(func(inv *battle.Invite) bool { return inv.Status == battle.InvitePending }), nil
}

func (s *MemoryInviteStore) list(match func(*battle.Invite) bool) []*battle.Invite {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*battle.Invite, 0)
	for _, inv := range s.invites {
		if match(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

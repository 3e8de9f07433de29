package history

import (
	"context"
	"sort"
	"sync"

	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// MemoryRepository implements history.Repository using in-memory storage.
type MemoryRepository struct {
	mu        sync.RWMutex
	histories map[shared.PlayerID]*history.UserBattleHistory
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		histories: make(map[shared.PlayerID]*history.UserBattleHistory),
	}
}

func (r *MemoryRepository) Get(ctx context.Context, userID shared.PlayerID) (*history.UserBattleHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.histories[userID]
	if !exists {
		return nil, history.ErrHistoryNotFound
	}
	copied := *h
	return &copied, nil
}

// Update applies fn to a working copy and stores it only when fn succeeds.
func (r *MemoryRepository) Update(ctx context.Context, userID shared.PlayerID, fn func(*history.UserBattleHistory) error) (*history.UserBattleHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var working history.UserBattleHistory
	if h, exists := r.histories[userID]; exists {
		working = *h
	} else {
		fresh, err := history.New(userID)
		if err != nil {
			return nil, err
		}
		working = *fresh
	}
	if err := fn(&working); err != nil {
		return nil, err
	}
	stored := working
	r.histories[userID] = &stored
	return &working, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*history.UserBattleHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*history.UserBattleHistory, 0, len(r.histories))
	for _, h := range r.histories {
		copied := *h
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

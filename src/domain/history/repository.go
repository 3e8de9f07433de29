package history

import (
	"context"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Repository stores one history per user. Update runs fn atomically for
// that user, creating an empty history first when none exists.
type Repository interface {
	Get(ctx context.Context, userID shared.PlayerID) (*UserBattleHistory, error)
	Update(ctx context.Context, userID shared.PlayerID, fn func(*UserBattleHistory) error) (*UserBattleHistory, error)
	List(ctx context.Context) ([]*UserBattleHistory, error)
}

package history

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS pk_battle_histories (
	user_id    TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresRepository stores one JSONB history row per user. Update locks
// the row for the duration of fn.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func scanHistory(row pgx.Row) (*history.UserBattleHistory, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrHistoryNotFound
		}
		return nil, err
	}
	var h history.UserBattleHistory
	if err := json.Unmarshal(doc, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID shared.PlayerID) (*history.UserBattleHistory, error) {
	return scanHistory(r.db.QueryRow(ctx, `SELECT doc FROM pk_battle_histories WHERE user_id = $1`, userID))
}

func (r *PostgresRepository) Update(ctx context.Context, userID shared.PlayerID, fn func(*history.UserBattleHistory) error) (*history.UserBattleHistory, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	fresh, err := history.New(userID)
	if err != nil {
		return nil, err
	}
	seed, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pk_battle_histories (user_id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, seed); err != nil {
		return nil, err
	}
	h, err := scanHistory(tx.QueryRow(ctx, `SELECT doc FROM pk_battle_histories WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, err
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	doc, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE pk_battle_histories SET doc = $2, updated_at = $3 WHERE user_id = $1
	`, userID, doc, h.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*history.UserBattleHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT doc FROM pk_battle_histories ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*history.UserBattleHistory, 0)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

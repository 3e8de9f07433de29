package battle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS pk_battles (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	room_a     TEXT NOT NULL,
	room_b     TEXT NOT NULL DEFAULT '',
	doc        JSONB NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pk_battles_status_idx ON pk_battles (status);
CREATE TABLE IF NOT EXISTS pk_battle_gifts (
	id         TEXT PRIMARY KEY,
	battle_id  TEXT NOT NULL REFERENCES pk_battles (id),
	room_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	value      BIGINT NOT NULL CHECK (value > 0),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pk_battle_gifts_battle_idx ON pk_battle_gifts (battle_id, created_at);
CREATE TABLE IF NOT EXISTS pk_battle_invites (
	id         TEXT PRIMARY KEY,
	battle_id  TEXT NOT NULL REFERENCES pk_battles (id),
	status     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	version    BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pk_battle_invites_pending_idx ON pk_battle_invites (status, battle_id);
`

// PostgresStore implements battle.Store and battle.InviteStore. The battle
// document lives in a JSONB column next to a version column that backs
// compare-and-set updates.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Invites exposes the invite half of the store.
func (s *PostgresStore) Invites() *PostgresInviteStore {
	return &PostgresInviteStore{db: s.db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func roomB(b *battle.Battle) string {
	if b.SideB == nil {
		return ""
	}
	return string(b.SideB.RoomID)
}

func (s *PostgresStore) Get(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	return scanBattle(s.db.QueryRow(ctx, `SELECT doc, version FROM pk_battles WHERE id = $1`, id))
}

func scanBattle(row pgx.Row) (*battle.Battle, error) {
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, battle.ErrBattleNotFound
		}
		return nil, err
	}
	var b battle.Battle
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, err
	}
	b.Version = version
	return &b, nil
}

func (s *PostgresStore) Create(ctx context.Context, b *battle.Battle) error {
	b.Version = 1
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO pk_battles (id, status, room_a, room_b, doc, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.Status, b.SideA.RoomID, roomB(b), doc, b.Version, b.CreatedAt)
	if isUniqueViolation(err) {
		return battle.ErrDuplicateBattle
	}
	return err
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func putBattle(ctx context.Context, db execer, b *battle.Battle, expectedVersion int64) error {
	next := b.Clone()
	next.Version = expectedVersion + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE pk_battles
		SET status = $2, room_b = $3, doc = $4, version = $5
		WHERE id = $1 AND version = $6
	`, b.ID, b.Status, roomB(b), doc, next.Version, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pk_battles WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return battle.ErrBattleNotFound
		}
		return battle.ErrVersionConflict
	}
	b.Version = next.Version
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, b *battle.Battle, expectedVersion int64) error {
	return putBattle(ctx, s.db, b, expectedVersion)
}

func (s *PostgresStore) AppendGift(ctx context.Context, b *battle.Battle, expectedVersion int64, gift *battle.GiftEvent) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	version := b.Version
	if err := putBattle(ctx, tx, b, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pk_battle_gifts (id, battle_id, room_id, sender_id, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, gift.ID, gift.BattleID, gift.RoomID, gift.SenderID, gift.Value, gift.CreatedAt); err != nil {
		b.Version = version
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		b.Version = version
		return err
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*battle.Battle, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*battle.Battle, 0)
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*battle.Battle, error) {
	return s.list(ctx, `
		SELECT doc, version FROM pk_battles
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at DESC, id
	`, battle.StatusFinished, battle.StatusCancelled)
}

func (s *PostgresStore) ListByRoom(ctx context.Context, room shared.RoomID) ([]*battle.Battle, error) {
	return s.list(ctx, `
		SELECT doc, version FROM pk_battles
		WHERE room_a = $1 OR room_b = $1
		ORDER BY created_at DESC, id
	`, room)
}

func (s *PostgresStore) ListFinished(ctx context.Context) ([]*battle.Battle, error) {
	return s.list(ctx, `
		SELECT doc, version FROM pk_battles
		WHERE status = $1
		ORDER BY created_at DESC, id
	`, battle.StatusFinished)
}

func (s *PostgresStore) ListGifts(ctx context.Context, id shared.BattleID) ([]*battle.GiftEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, battle_id, room_id, sender_id, value, created_at
		FROM pk_battle_gifts WHERE battle_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*battle.GiftEvent, 0)
	for rows.Next() {
		var g battle.GiftEvent
		if err := rows.Scan(&g.ID, &g.BattleID, &g.RoomID, &g.SenderID, &g.Value, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// PostgresInviteStore implements battle.InviteStore on the same pool.
type PostgresInviteStore struct {
	db *pgxpool.Pool
}

func scanInvite(row pgx.Row) (*battle.Invite, error) {
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, battle.ErrInviteNotFound
		}
		return nil, err
	}
	var inv battle.Invite
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, err
	}
	inv.Version = version
	return &inv, nil
}

func (s *PostgresInviteStore) Get(ctx context.Context, id shared.InviteID) (*battle.Invite, error) {
	return scanInvite(s.db.QueryRow(ctx, `SELECT doc, version FROM pk_battle_invites WHERE id = $1`, id))
}

func (s *PostgresInviteStore) Create(ctx context.Context, inv *battle.Invite) error {
	inv.Version = 1
	doc, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO pk_battle_invites (id, battle_id, status, doc, version, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.ID, inv.BattleID, inv.Status, doc, inv.Version, inv.ExpiresAt)
	if isUniqueViolation(err) {
		return battle.ErrDuplicateInvite
	}
	return err
}

func (s *PostgresInviteStore) Put(ctx context.Context, inv *battle.Invite, expectedVersion int64) error {
	next := inv.Clone()
	next.Version = expectedVersion + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE pk_battle_invites
		SET status = $2, doc = $3, version = $4
		WHERE id = $1 AND version = $5
	`, inv.ID, inv.Status, doc, next.Version, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, inv.ID); err != nil {
			return err
		}
		return battle.ErrVersionConflict
	}
	inv.Version = next.Version
	return nil
}

func (s *PostgresInviteStore) list(ctx context.Context, query string, args ...any) ([]*battle.Invite, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*battle.Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresInviteStore) ListPendingByBattle(ctx context.Context, id shared.BattleID) ([]*battle.Invite, error) {
	return s.list(ctx, `
		SELECT doc, version FROM pk_battle_invites
		WHERE status = $1 AND battle_id = $2
		ORDER BY expires_at
	`, battle.InvitePending, id)
}

func (s *PostgresInviteStore) ListPending(ctx context.Context) ([]*battle.Invite, error) {
	return s.list(ctx, `
		SELECT doc, version FROM pk_battle_invites
		WHERE status = $1
		ORDER BY expires_at
	`, battle.InvitePending)
}

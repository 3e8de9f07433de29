package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/app/battles"
	apphistory "github.com/sandai/pkbattle/src/app/history"
	leaderboardsvc "github.com/sandai/pkbattle/src/app/leaderboard"
	"github.com/sandai/pkbattle/src/app/settlement"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
	battleinfra "github.com/sandai/pkbattle/src/infra/battle"
	"github.com/sandai/pkbattle/src/infra/catalog"
	economyinfra "github.com/sandai/pkbattle/src/infra/economy"
	historyinfra "github.com/sandai/pkbattle/src/infra/history"
	"github.com/sandai/pkbattle/src/infra/live"
	"github.com/sandai/pkbattle/src/infra/scheduler"
)

// gRPC status codes understood by Nakama clients.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codeAlreadyExists      = 6
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeAborted            = 10
	codeInternal           = 13
	codeUnavailable        = 14
	codeUnauthenticated    = 16

	notificationBattleUpdate = 1100
)

type module struct {
	battles     *battles.Service
	history     *apphistory.Service
	leaderboard *leaderboardsvc.Service
	catalog     economy.Catalog
	ledger      economy.Ledger
}

// InitModule registers the PK battle RPCs on a Nakama server. Set
// PKBATTLE_STORE_DSN in the runtime env to persist battles in Postgres.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	battleStore, inviteStore, historyRepo, err := openStores(ctx, env["PKBATTLE_STORE_DSN"])
	if err != nil {
		return err
	}
	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()
	wallet := economyinfra.NewNakamaWallet(nk)

	historyService := apphistory.NewService(historyRepo)
	engine := settlement.NewEngine(battleStore, wallet, historyService)
	engine.Logger = zlog.Named("settlement")

	nodeID, _ := strconv.ParseInt(env["PKBATTLE_NODE_ID"], 10, 64)
	ids, err := battles.NewIDGenerator(nodeID)
	if err != nil {
		return err
	}
	battleService := battles.NewService(battleStore, inviteStore, engine, ids)
	battleService.Live = &notifier{nk: nk}
	battleService.Logger = zlog.Named("battles")
	battleService.Clock = clock

	m := &module{
		battles:     battleService,
		history:     historyService,
		leaderboard: leaderboardsvc.NewService(battleStore, historyService),
		catalog:     catalog.NewMemoryCatalog(map[string]int64{"rose": 1, "heart": 10, "rocket": 500}),
		ledger:      wallet,
	}

	if _, err := battleService.Recover(ctx); err != nil {
		logger.Warn("pk battle recovery incomplete: %v", err)
	}
	if _, err := scheduler.StartRecovery(clock, 30*time.Second, battleService, zlog.Named("recovery")); err != nil {
		return err
	}

	rpcs := map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
		"pkbattle.create":      m.rpcCreate,
		"pkbattle.invite":      m.rpcInvite,
		"pkbattle.accept":      m.rpcAccept,
		"pkbattle.reject":      m.rpcReject,
		"pkbattle.cancel":      m.rpcCancel,
		"pkbattle.gift":        m.rpcGift,
		"pkbattle.finish":      m.rpcFinish,
		"pkbattle.get":         m.rpcGet,
		"pkbattle.history":     m.rpcHistory,
		"pkbattle.leaderboard": m.rpcLeaderboard,
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return err
		}
	}
	logger.Info("pk battle runtime module registered")
	return nil
}

func openStores(ctx context.Context, dsn string) (battle.Store, battle.InviteStore, history.Repository, error) {
	if dsn == "" {
		return battleinfra.NewMemoryStore(), battleinfra.NewMemoryInviteStore(), historyinfra.NewMemoryRepository(), nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	store := battleinfra.NewPostgresStore(pool)
	repo := historyinfra.NewPostgresRepository(pool)
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, nil, nil, err
	}
	return store, store.Invites(), repo, nil
}

// notifier pushes battle snapshots to both hosts as Nakama notifications.
type notifier struct {
	nk runtime.NakamaModule
}

func (n *notifier) Publish(ctx context.Context, b *battle.Battle) error {
	content := map[string]interface{}{
		"battle_id": string(b.ID),
		"status":    string(b.Status),
		"score_a":   b.SideA.Score,
		"version":   b.Version,
	}
	hosts := []shared.PlayerID{b.SideA.HostID}
	if b.SideB != nil {
		content["score_b"] = b.SideB.Score
		hosts = append(hosts, b.SideB.HostID)
	}
	if b.WinnerRoomID != "" {
		content["winner_room_id"] = string(b.WinnerRoomID)
	}
	for _, host := range hosts {
		if err := n.nk.NotificationSend(ctx, string(host), "pk_battle", content, notificationBattleUpdate, "", false); err != nil {
			return err
		}
	}
	return nil
}

func callerID(ctx context.Context) (shared.PlayerID, error) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userID == "" {
		return "", runtime.NewError("authentication required", codeUnauthenticated)
	}
	return shared.PlayerID(userID), nil
}

func decodePayload(payload string, dst any) error {
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return runtime.NewError("malformed payload", codeInvalidArgument)
	}
	return nil
}

func respond(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("encode response", codeInternal)
	}
	return string(out), nil
}

// runtimeError maps domain errors onto Nakama error codes.
func runtimeError(err error) error {
	code := codeInternal
	switch {
	case errors.Is(err, shared.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, shared.ErrValidation):
		code = codeInvalidArgument
	case errors.Is(err, shared.ErrForbidden):
		code = codePermissionDenied
	case errors.Is(err, shared.ErrDuplicate):
		code = codeAlreadyExists
	case errors.Is(err, shared.ErrConflict):
		code = codeAborted
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrExpired), errors.Is(err, shared.ErrInsufficientFunds):
		code = codeFailedPrecondition
	case errors.Is(err, shared.ErrDependency):
		code = codeUnavailable
	}
	return runtime.NewError(err.Error(), code)
}

type sidePayload struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (p sidePayload) info(host shared.PlayerID) battle.SideInfo {
	return battle.SideInfo{
		RoomID:      shared.RoomID(p.RoomID),
		HostID:      host,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

func (m *module) rpcCreate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req struct {
		Type string      `json:"type"`
		Side sidePayload `json:"side"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	b, err := m.battles.CreateBattle(ctx, battles.CreateBattleCommand{SideA: req.Side.info(caller), Type: battle.Type(req.Type)})
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(live.NewSnapshot(b))
}

func (m *module) rpcInvite(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		BattleID string `json:"battle_id"`
		ToRoomID string `json:"to_room_id"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	inv, err := m.battles.Invite(ctx, battles.InviteCommand{BattleID: shared.BattleID(req.BattleID), ToRoomID: shared.RoomID(req.ToRoomID)})
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(map[string]any{
		"id":         string(inv.ID),
		"battle_id":  string(inv.BattleID),
		"status":     string(inv.Status),
		"expires_at": inv.ExpiresAt,
	})
}

func (m *module) rpcAccept(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req struct {
		InviteID string      `json:"invite_id"`
		Side     sidePayload `json:"side"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	b, err := m.battles.Accept(ctx, battles.AcceptCommand{InviteID: shared.InviteID(req.InviteID), SideB: req.Side.info(caller)})
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(live.NewSnapshot(b))
}

func (m *module) rpcReject(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		InviteID string `json:"invite_id"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	inv, err := m.battles.Reject(ctx, battles.RejectCommand{InviteID: shared.InviteID(req.InviteID)})
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(map[string]string{"id": string(inv.ID), "status": string(inv.Status)})
}

func (m *module) rpcCancel(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req struct {
		BattleID string `json:"battle_id"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	cancelled, err := m.battles.Cancel(ctx, battles.CancelCommand{BattleID: shared.BattleID(req.BattleID), RequesterID: caller})
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(map[string]bool{"cancelled": cancelled})
}

// rpcGift charges the caller's wallet for a catalog gift and scores it,
// refunding when the battle rejects the gift.
func (m *module) rpcGift(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req struct {
		BattleID string `json:"battle_id"`
		RoomID   string `json:"room_id"`
		GiftID   string `json:"gift_id"`
		Count    int64  `json:"count"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	price, err := m.catalog.Price(ctx, shared.GiftID(req.GiftID))
	if err != nil {
		return "", runtimeError(err)
	}
	value := price * req.Count
	if err := m.ledger.Debit(ctx, caller, value, economy.ReasonGift); err != nil {
		return "", runtimeError(err)
	}
	b, err := m.battles.ApplyGift(ctx, battles.ApplyGiftCommand{
		BattleID: shared.BattleID(req.BattleID),
		RoomID:   shared.RoomID(req.RoomID),
		SenderID: caller,
		Value:    value,
	})
	if err != nil {
		key := shared.IdempotencyKey("gift-refund:" + req.BattleID + ":" + string(caller) + ":" + strconv.FormatInt(time.Now().UnixNano(), 10))
		if refundErr := m.ledger.Credit(ctx, caller, economy.Amount{Coins: value}, economy.ReasonGift, key); refundErr != nil {
			logger.Error("gift refund failed for %s: %v", caller, refundErr)
		}
		return "", runtimeError(err)
	}
	return respond(live.NewSnapshot(b))
}

func (m *module) rpcFinish(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		BattleID string `json:"battle_id"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	b, err := m.battles.ForceFinish(ctx, battles.ForceFinishCommand{BattleID: shared.BattleID(req.BattleID)})
	if err != nil && b == nil {
		return "", runtimeError(err)
	}
	if err != nil {
		logger.Warn("battle %s finished with unpaid rewards: %v", b.ID, err)
	}
	return respond(live.NewSnapshot(b))
}

func (m *module) rpcGet(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		BattleID string `json:"battle_id"`
	}
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	b, err := m.battles.GetBattle(ctx, shared.BattleID(req.BattleID))
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(live.NewSnapshot(b))
}

func (m *module) rpcHistory(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	h, err := m.history.GetUserHistory(ctx, caller)
	if err != nil {
		return "", runtimeError(err)
	}
	return respond(map[string]any{
		"user_id":           string(h.UserID),
		"total_battles":     h.TotalBattles,
		"wins":              h.Wins,
		"losses":            h.Losses,
		"draws":             h.Draws,
		"win_rate":          h.WinRate(),
		"current_streak":    h.CurrentStreak,
		"best_streak":       h.BestStreak,
		"highest_score":     h.HighestScore,
		"total_contributed": h.TotalContributed,
	})
}

func (m *module) rpcLeaderboard(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if payload != "" {
		if err := decodePayload(payload, &req); err != nil {
			return "", err
		}
	}
	entries, err := m.leaderboard.TopByTotalScore(ctx, req.Limit)
	if err != nil {
		return "", runtimeError(err)
	}
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]any{
			"rank":        e.Rank,
			"user_id":     string(e.UserID),
			"wins":        e.Wins,
			"losses":      e.Losses,
			"draws":       e.Draws,
			"win_rate":    e.WinRate,
			"total_score": e.TotalScore,
		})
	}
	return respond(rows)
}

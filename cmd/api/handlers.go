package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/app/battles"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/leaderboard"
	"github.com/sandai/pkbattle/src/domain/shared"
	"github.com/sandai/pkbattle/src/infra/live"
)

var errBadBody = fmt.Errorf("%w: malformed request body", shared.ErrValidation)

const refundTimeout = 5 * time.Second

type sideRequest struct {
	RoomID      string `json:"room_id"`
	HostID      string `json:"host_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (s sideRequest) info(r *http.Request) battle.SideInfo {
	return battle.SideInfo{
		RoomID:      shared.RoomID(s.RoomID),
		HostID:      requester(r.Context(), s.HostID),
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
	}
}

type createBattleRequest struct {
	Type string      `json:"type"`
	Side sideRequest `json:"side"`
}

type inviteRequest struct {
	ToRoomID string `json:"to_room_id"`
}

type acceptRequest struct {
	Side sideRequest `json:"side"`
}

type cancelRequest struct {
	RequesterID string `json:"requester_id"`
}

type giftRequest struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	GiftID   string `json:"gift_id"`
	Count    int64  `json:"count"`
	Value    int64  `json:"value"`
}

type inviteResponse struct {
	ID          string     `json:"id"`
	BattleID    string     `json:"battle_id"`
	FromRoomID  string     `json:"from_room_id"`
	ToRoomID    string     `json:"to_room_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func newInviteResponse(inv *battle.Invite) inviteResponse {
	return inviteResponse{
		ID:          string(inv.ID),
		BattleID:    string(inv.BattleID),
		FromRoomID:  string(inv.FromRoomID),
		ToRoomID:    string(inv.ToRoomID),
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		RespondedAt: inv.RespondedAt,
	}
}

type giftResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	UserID           string    `json:"user_id"`
	TotalBattles     int       `json:"total_battles"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	Draws            int       `json:"draws"`
	WinRate          float64   `json:"win_rate"`
	CurrentStreak    int       `json:"current_streak"`
	BestStreak       int       `json:"best_streak"`
	HighestScore     int64     `json:"highest_score"`
	TotalContributed int64     `json:"total_contributed"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newHistoryResponse(h *history.UserBattleHistory) historyResponse {
	return historyResponse{
		UserID:           string(h.UserID),
		TotalBattles:     h.TotalBattles,
		Wins:             h.Wins,
		Losses:           h.Losses,
		Draws:            h.Draws,
		WinRate:          h.WinRate(),
		CurrentStreak:    h.CurrentStreak,
		BestStreak:       h.BestStreak,
		HighestScore:     h.HighestScore,
		TotalContributed: h.TotalContributed,
		UpdatedAt:        h.UpdatedAt,
	}
}

type leaderboardRow struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	WinRate    float64 `json:"win_rate"`
	TotalScore int64   `json:"total_score"`
}

func newLeaderboardRows(entries []leaderboard.Entry) []leaderboardRow {
	rows := make([]leaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, leaderboardRow{
			Rank:       e.Rank,
			UserID:     string(e.UserID),
			Wins:       e.Wins,
			Losses:     e.Losses,
			Draws:      e.Draws,
			WinRate:    e.WinRate,
			TotalScore: e.TotalScore,
		})
	}
	return rows
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}

func battleID(r *http.Request) shared.BattleID {
	return shared.BattleID(mux.Vars(r)["id"])
}

func (s *Server) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	b, err := s.cfg.BattleService.CreateBattle(r.Context(), battles.CreateBattleCommand{
		SideA: req.Side.info(r),
		Type:  battle.Type(req.Type),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, live.NewSnapshot(b))
}

func (s *Server) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.BattleService.GetBattle(r.Context(), battleID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, live.NewSnapshot(b))
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	inv, err := s.cfg.BattleService.Invite(r.Context(), battles.InviteCommand{
		BattleID: battleID(r),
		ToRoomID: shared.RoomID(req.ToRoomID),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newInviteResponse(inv))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	b, err := s.cfg.BattleService.Accept(r.Context(), battles.AcceptCommand{
		InviteID: shared.InviteID(mux.Vars(r)["id"]),
		SideB:    req.Side.info(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, live.NewSnapshot(b))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	inv, err := s.cfg.BattleService.Reject(r.Context(), battles.RejectCommand{
		InviteID: shared.InviteID(mux.Vars(r)["id"]),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newInviteResponse(inv))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	cancelled, err := s.cfg.BattleService.Cancel(r.Context(), battles.CancelCommand{
		BattleID:    battleID(r),
		RequesterID: requester(r.Context(), req.RequesterID),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleSendGift charges the sender for a catalog gift and scores it. A raw
// value without gift_id is scored as is for callers that charge upstream.
func (s *Server) handleSendGift(w http.ResponseWriter, r *http.Request) {
	var req giftRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	ctx := r.Context()
	sender := requester(ctx, req.SenderID)
	if err := sender.Validate(); err != nil {
		s.writeDomainError(w, err)
		return
	}

	value := req.Value
	charged := false
	if req.GiftID != "" {
		if req.Count <= 0 {
			req.Count = 1
		}
		price, err := s.cfg.Catalog.Price(ctx, shared.GiftID(req.GiftID))
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		value = price * req.Count
		if err := s.cfg.Ledger.Debit(ctx, sender, value, economy.ReasonGift); err != nil {
			s.writeDomainError(w, err)
			return
		}
		charged = true
	}

	b, err := s.cfg.BattleService.ApplyGift(ctx, battles.ApplyGiftCommand{
		BattleID: battleID(r),
		RoomID:   shared.RoomID(req.RoomID),
		SenderID: sender,
		Value:    value,
	})
	if err != nil {
		if charged {
			s.refund(r.Context(), sender, value)
		}
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, live.NewSnapshot(b))
}

// refund outlives the request so a client disconnect cannot drop it.
func (s *Server) refund(ctx context.Context, sender shared.PlayerID, coins int64) {
	key := shared.IdempotencyKey("gift-refund:" + correlationIDFromContext(ctx))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	err := s.cfg.Ledger.Credit(ctx, sender, economy.Amount{Coins: coins}, economy.ReasonGift, key)
	if err != nil {
		s.cfg.Logger.Error("gift_refund_failed",
			zap.String("sender_id", string(sender)),
			zap.Int64("coins", coins),
			zap.Error(err),
		)
	}
}

func (s *Server) handleListGifts(w http.ResponseWriter, r *http.Request) {
	gifts, err := s.cfg.BattleService.ListGifts(r.Context(), battleID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]giftResponse, 0, len(gifts))
	for _, g := range gifts {
		out = append(out, giftResponse{
			ID:        string(g.ID),
			RoomID:    string(g.RoomID),
			SenderID:  string(g.SenderID),
			Value:     g.Value,
			CreatedAt: g.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleForceFinish(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.BattleService.ForceFinish(r.Context(), battles.ForceFinishCommand{BattleID: battleID(r)})
	if err != nil {
		// A finished but unpaid battle still carries its result.
		if b != nil && errors.Is(err, shared.ErrDependency) {
			s.writeJSON(w, http.StatusAccepted, live.NewSnapshot(b))
			return
		}
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, live.NewSnapshot(b))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("live feed disabled"))
		return
	}
	b, err := s.cfg.BattleService.GetBattle(r.Context(), battleID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.cfg.Hub.Serve(w, r, b.ID, b); err != nil {
		s.cfg.Logger.Warn("live_upgrade_failed", zap.String("battle_id", string(b.ID)), zap.Error(err))
	}
}

func (s *Server) handleRoomBattles(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.BattleService.ListByRoom(r.Context(), shared.RoomID(mux.Vars(r)["room"]))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]live.Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, live.NewSnapshot(b))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.cfg.HistoryService.GetUserHistory(r.Context(), shared.PlayerID(mux.Vars(r)["user"]))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newHistoryResponse(h))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	entries, err := s.cfg.LeaderboardService.TopByTotalScore(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLeaderboardRows(entries))
}

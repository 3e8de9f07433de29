package battle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
)

var (
	hostA = battle.SideInfo{RoomID: "room-a", HostID: "host-a", DisplayName: "A"}
	hostB = battle.SideInfo{RoomID: "room-b", HostID: "host-b", DisplayName: "B"}
)

func activeBattle(t *testing.T, typ battle.Type, now time.Time) *battle.Battle {
	t.Helper()
	b, err := battle.NewBattle("battle-1", typ, hostA, now)
	if err != nil {
		t.Fatalf("NewBattle() error = %v", err)
	}
	if err := b.Accept(hostB, now); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := b.Activate(now, battle.DefaultDurations[typ]); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	return b
}

func TestNewBattle(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		id      shared.BattleID
		typ     battle.Type
		side    battle.SideInfo
		wantErr error
	}{
		{name: "valid quick battle", id: "b1", typ: battle.TypeQuick, side: hostA},
		{name: "unknown type", id: "b1", typ: "blitz", side: hostA, wantErr: shared.ErrValidation},
		{name: "missing room", id: "b1", typ: battle.TypeRanked, side: battle.SideInfo{HostID: "h"}, wantErr: shared.ErrValidation},
		{name: "missing host", id: "b1", typ: battle.TypeRanked, side: battle.SideInfo{RoomID: "r"}, wantErr: shared.ErrValidation},
		{name: "missing id", typ: battle.TypeStandard, side: hostA, wantErr: shared.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := battle.NewBattle(tt.id, tt.typ, tt.side, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewBattle() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr == nil {
				if b.Status != battle.StatusWaiting {
					t.Errorf("Expected status waiting, got %v", b.Status)
				}
				if b.SideB != nil {
					t.Errorf("Expected side B unset while waiting")
				}
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from battle.Status
		to   battle.Status
		want bool
	}{
		{battle.StatusWaiting, battle.StatusCountdown, true},
		{battle.StatusWaiting, battle.StatusCancelled, true},
		{battle.StatusWaiting, battle.StatusActive, false},
		{battle.StatusCountdown, battle.StatusActive, true},
		{battle.StatusCountdown, battle.StatusCancelled, true},
		{battle.StatusActive, battle.StatusFinished, true},
		{battle.StatusActive, battle.StatusCancelled, false},
		{battle.StatusFinished, battle.StatusActive, false},
		{battle.StatusCancelled, battle.StatusWaiting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAcceptActivateFinish(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b, _ := battle.NewBattle("b1", battle.TypeQuick, hostA, now)

	if err := b.Accept(battle.SideInfo{RoomID: "room-a", HostID: "other"}, now); !errors.Is(err, battle.ErrSameRoom) {
		t.Fatalf("Accept() same room error = %v", err)
	}
	if err := b.Accept(hostB, now); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if b.Status != battle.StatusCountdown || b.CountdownStartedAt == nil {
		t.Fatalf("Expected countdown with start time, got %v", b.Status)
	}

	start := now.Add(10 * time.Second)
	if err := b.Activate(start, 180*time.Second); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !b.EndedAt.Equal(start.Add(180 * time.Second)) {
		t.Errorf("Expected endedAt %v, got %v", start.Add(180*time.Second), b.EndedAt)
	}

	if err := b.Cancel(start); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("Cancel() on active error = %v, want invalid state", err)
	}

	if err := b.ApplyGift("room-b", "viewer", 40, start); err != nil {
		t.Fatalf("ApplyGift() error = %v", err)
	}
	if err := b.Finish(start.Add(180 * time.Second)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if b.WinnerRoomID != "room-b" {
		t.Errorf("Expected winner room-b, got %q", b.WinnerRoomID)
	}
	if err := b.Finish(start.Add(200 * time.Second)); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("second Finish() error = %v", err)
	}
}

func TestFinishEarlyKeepsPlannedEnd(t *testing.T) {
	now := time.Now()
	b := activeBattle(t, battle.TypeRanked, now)
	planned := now.Add(battle.DefaultDurations[battle.TypeRanked])
	early := now.Add(time.Minute)
	if err := b.Finish(early); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !b.EndedAt.Equal(planned) {
		t.Errorf("Expected endedAt %v, got %v", planned, b.EndedAt)
	}
	if b.FinishedAt == nil || !b.FinishedAt.Equal(early) {
		t.Errorf("Expected finishedAt %v, got %v", early, b.FinishedAt)
	}
	if b.WinnerRoomID != "" {
		t.Errorf("Expected draw without winner, got %q", b.WinnerRoomID)
	}
}

func TestApplyGift(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		room    shared.RoomID
		sender  shared.PlayerID
		value   int64
		wantErr error
	}{
		{name: "valid gift", room: "room-a", sender: "v1", value: 10},
		{name: "zero value", room: "room-a", sender: "v1", value: 0, wantErr: shared.ErrValidation},
		{name: "negative value", room: "room-a", sender: "v1", value: -5, wantErr: shared.ErrValidation},
		{name: "unknown room", room: "room-z", sender: "v1", value: 10, wantErr: shared.ErrValidation},
		{name: "missing sender", room: "room-b", value: 10, wantErr: shared.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := activeBattle(t, battle.TypeQuick, now)
			err := b.ApplyGift(tt.room, tt.sender, tt.value, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ApplyGift() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("not active", func(t *testing.T) {
		b, _ := battle.NewBattle("b1", battle.TypeQuick, hostA, now)
		if err := b.ApplyGift("room-a", "v1", 10, now); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("ApplyGift() error = %v, want invalid state", err)
		}
	})

	t.Run("supporters are distinct senders", func(t *testing.T) {
		b := activeBattle(t, battle.TypeQuick, now)
		_ = b.ApplyGift("room-a", "v1", 10, now)
		_ = b.ApplyGift("room-a", "v1", 5, now)
		_ = b.ApplyGift("room-a", "v2", 1, now)
		if b.SideA.Score != 16 || b.SideA.SupporterCount != 2 {
			t.Errorf("Expected score 16 with 2 supporters, got %d/%d", b.SideA.Score, b.SideA.SupporterCount)
		}
	})
}

func TestCloneIsDeep(t *testing.T) {
	b := activeBattle(t, battle.TypeQuick, time.Now())
	_ = b.ApplyGift("room-a", "v1", 10, time.Now())
	c := b.Clone()
	_ = c.ApplyGift("room-a", "v2", 10, time.Now())
	if b.SideA.SupporterCount != 1 || b.SideA.Score != 10 {
		t.Errorf("Clone shares state with original: %+v", b.SideA)
	}
}

func TestComputeRewards(t *testing.T) {
	tests := []struct {
		typ        battle.Type
		winnerGift int64
		want       *battle.Rewards
	}{
		{battle.TypeQuick, 1, &battle.Rewards{
			Winner: battle.RewardShare{UserID: "host-a", RoomID: "room-a", Amount: economy.Amount{Coins: 500, Diamonds: 50}},
			Loser:  battle.RewardShare{UserID: "host-b", RoomID: "room-b", Amount: economy.Amount{Coins: 100, Diamonds: 10}},
		}},
		{battle.TypeStandard, 1, &battle.Rewards{
			Winner: battle.RewardShare{UserID: "host-a", RoomID: "room-a", Amount: economy.Amount{Coins: 1000, Diamonds: 100}},
			Loser:  battle.RewardShare{UserID: "host-b", RoomID: "room-b", Amount: economy.Amount{Coins: 300, Diamonds: 30}},
		}},
		{battle.TypeRanked, 1, &battle.Rewards{
			Winner: battle.RewardShare{UserID: "host-a", RoomID: "room-a", Amount: economy.Amount{Coins: 2500, Diamonds: 250}},
			Loser:  battle.RewardShare{UserID: "host-b", RoomID: "room-b", Amount: economy.Amount{Coins: 500, Diamonds: 50}},
		}},
		{battle.TypeRanked, 0, nil},
	}
	for _, tt := range tests {
		b := activeBattle(t, tt.typ, time.Now())
		if tt.winnerGift > 0 {
			_ = b.ApplyGift("room-a", "v1", tt.winnerGift, time.Now())
		}
		got := battle.ComputeRewards(b)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("%s: ComputeRewards() = %+v, want %+v", tt.typ, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("%s: ComputeRewards() = %+v, want %+v", tt.typ, *got, *tt.want)
		}
	}
}

func TestMarkSettled(t *testing.T) {
	now := time.Now()
	b := activeBattle(t, battle.TypeQuick, now)
	if err := b.MarkSettled(now); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("MarkSettled() on active error = %v", err)
	}
	_ = b.Finish(now)
	if err := b.MarkSettled(now); err != nil {
		t.Fatalf("MarkSettled() error = %v", err)
	}
	if err := b.MarkSettled(now.Add(time.Second)); !errors.Is(err, battle.ErrAlreadySettled) {
		t.Errorf("second MarkSettled() error = %v", err)
	}
}

func TestMarkHistoryRecorded(t *testing.T) {
	now := time.Now()
	b := activeBattle(t, battle.TypeQuick, now)
	if err := b.MarkHistoryRecorded(now); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("MarkHistoryRecorded() on active error = %v", err)
	}
	_ = b.Finish(now)
	if err := b.MarkHistoryRecorded(now); err != nil {
		t.Fatalf("MarkHistoryRecorded() error = %v", err)
	}
	if err := b.MarkHistoryRecorded(now.Add(time.Second)); !errors.Is(err, battle.ErrHistoryRecorded) {
		t.Errorf("second MarkHistoryRecorded() error = %v", err)
	}

	clone := b.Clone()
	*clone.HistoryRecordedAt = now.Add(time.Hour)
	if b.HistoryRecordedAt.Equal(*clone.HistoryRecordedAt) {
		t.Error("Clone() shares HistoryRecordedAt with the original")
	}
}

func TestNewGiftEvent(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		id      shared.GiftEventID
		room    shared.RoomID
		sender  shared.PlayerID
		value   int64
		wantErr error
	}{
		{name: "valid", id: "g-1", room: "room-a", sender: "fan", value: 5},
		{name: "blank id", id: "  ", room: "room-a", sender: "fan", value: 5, wantErr: shared.ErrValidation},
		{name: "zero value", id: "g-1", room: "room-a", sender: "fan", value: 0, wantErr: battle.ErrGiftValue},
		{name: "missing room", id: "g-1", sender: "fan", value: 5, wantErr: shared.ErrValidation},
		{name: "missing sender", id: "g-1", room: "room-a", value: 5, wantErr: shared.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gift, err := battle.NewGiftEvent(tt.id, "battle-1", tt.room, tt.sender, tt.value, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewGiftEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && gift.ID != tt.id {
				t.Errorf("NewGiftEvent() id = %s, want %s", gift.ID, tt.id)
			}
		})
	}
}

package battle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
	battleinfra "github.com/sandai/pkbattle/src/infra/battle"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newWaiting(t *testing.T, id shared.BattleID, room shared.RoomID, created time.Time) *battle.Battle {
	t.Helper()
	b, err := battle.NewBattle(id, battle.TypeQuick, battle.SideInfo{RoomID: room, HostID: "host"}, created)
	if err != nil {
		t.Fatalf("NewBattle() error = %v", err)
	}
	return b
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	ctx := context.Background()
	b := newWaiting(t, "b-1", "room-a", start)

	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if b.Version != 1 {
		t.Errorf("Create() version = %d, want 1", b.Version)
	}
	if err := store.Create(ctx, b); !errors.Is(err, battle.ErrDuplicateBattle) {
		t.Errorf("Create() twice error = %v, wantErr %v", err, battle.ErrDuplicateBattle)
	}

	first, _ := store.Get(ctx, "b-1")
	second, _ := store.Get(ctx, "b-1")

	if err := first.Cancel(start); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := store.Put(ctx, first, 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if first.Version != 2 {
		t.Errorf("Put() version = %d, want 2", first.Version)
	}

	if err := second.Accept(battle.SideInfo{RoomID: "room-b", HostID: "host-b"}, start); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	err := store.Put(ctx, second, 1)
	if !errors.Is(err, battle.ErrVersionConflict) || !errors.Is(err, shared.ErrConflict) {
		t.Errorf("stale Put() error = %v, wantErr %v", err, battle.ErrVersionConflict)
	}

	got, _ := store.Get(ctx, "b-1")
	if got.Status != battle.StatusCancelled {
		t.Errorf("stored status = %s, want cancelled", got.Status)
	}
}

func TestMemoryStore_ClonesRecords(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	ctx := context.Background()
	b := newWaiting(t, "b-1", "room-a", start)
	_ = store.Create(ctx, b)

	b.SideA.Score = 999
	got, _ := store.Get(ctx, "b-1")
	if got.SideA.Score != 0 {
		t.Errorf("store shared state with caller: score = %d", got.SideA.Score)
	}
	got.SideA.Supporters["x"] = 1
	again, _ := store.Get(ctx, "b-1")
	if len(again.SideA.Supporters) != 0 {
		t.Errorf("store shared supporters map with caller")
	}
}

func TestMemoryStore_AppendGift(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	ctx := context.Background()
	b := newWaiting(t, "b-1", "room-a", start)
	_ = b.Accept(battle.SideInfo{RoomID: "room-b", HostID: "host-b"}, start)
	_ = b.Activate(start, time.Minute)
	_ = store.Create(ctx, b)

	next := b.Clone()
	_ = next.ApplyGift("room-a", "fan", 4, start)
	gift, _ := battle.NewGiftEvent("g-1", b.ID, "room-a", "fan", 4, start)
	if err := store.AppendGift(ctx, next, 1, gift); err != nil {
		t.Fatalf("AppendGift() error = %v", err)
	}

	stale := b.Clone()
	_ = stale.ApplyGift("room-b", "fan", 9, start)
	lost, _ := battle.NewGiftEvent("g-2", b.ID, "room-b", "fan", 9, start)
	if err := store.AppendGift(ctx, stale, 1, lost); !errors.Is(err, battle.ErrVersionConflict) {
		t.Errorf("stale AppendGift() error = %v, wantErr %v", err, battle.ErrVersionConflict)
	}

	gifts, _ := store.ListGifts(ctx, b.ID)
	if len(gifts) != 1 || gifts[0].ID != "g-1" {
		t.Errorf("ListGifts() = %+v, want only g-1", gifts)
	}
}

func TestMemoryStore_Lists(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	ctx := context.Background()

	older := newWaiting(t, "old", "room-a", start)
	newer := newWaiting(t, "new", "room-a", start.Add(time.Minute))
	other := newWaiting(t, "other", "room-z", start)
	_ = other.Cancel(start)
	for _, b := range []*battle.Battle{older, newer, other} {
		_ = store.Create(ctx, b)
	}

	byRoom, _ := store.ListByRoom(ctx, "room-a")
	if len(byRoom) != 2 || byRoom[0].ID != "new" || byRoom[1].ID != "old" {
		t.Errorf("ListByRoom() order = %v", ids(byRoom))
	}
	active, _ := store.ListActive(ctx)
	if len(active) != 2 {
		t.Errorf("ListActive() = %v, want the two waiting battles", ids(active))
	}
	finished, _ := store.ListFinished(ctx)
	if len(finished) != 0 {
		t.Errorf("ListFinished() = %v, want none", ids(finished))
	}
}

func ids(list []*battle.Battle) []shared.BattleID {
	out := make([]shared.BattleID, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func TestMemoryInviteStore(t *testing.T) {
	store := battleinfra.NewMemoryInviteStore()
	ctx := context.Background()
	b := newWaiting(t, "b-1", "room-a", start)

	inv, err := battle.NewInvite("i-1", b, "room-b", start, time.Minute)
	if err != nil {
		t.Fatalf("NewInvite() error = %v", err)
	}
	if err := store.Create(ctx, inv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, inv); !errors.Is(err, battle.ErrDuplicateInvite) {
		t.Errorf("Create() twice error = %v, wantErr %v", err, battle.ErrDuplicateInvite)
	}

	pending, _ := store.ListPendingByBattle(ctx, "b-1")
	if len(pending) != 1 {
		t.Fatalf("ListPendingByBattle() len = %d, want 1", len(pending))
	}

	next := pending[0].Clone()
	_ = next.Reject(start)
	if err := store.Put(ctx, next, pending[0].Version); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, next, pending[0].Version); !errors.Is(err, battle.ErrVersionConflict) {
		t.Errorf("stale Put() error = %v, wantErr %v", err, battle.ErrVersionConflict)
	}
	all, _ := store.ListPending(ctx)
	if len(all) != 0 {
		t.Errorf("ListPending() len = %d, want 0", len(all))
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, battle.ErrInviteNotFound) {
		t.Errorf("Get() error = %v, wantErr %v", err, battle.ErrInviteNotFound)
	}
}

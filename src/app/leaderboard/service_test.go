package leaderboard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	leaderboardsvc "github.com/sandai/pkbattle/src/app/leaderboard"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
	battleinfra "github.com/sandai/pkbattle/src/infra/battle"
)

type mockHistorySource struct {
	snapshotFunc func(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error)
}

func (m *mockHistorySource) Snapshot(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error) {
	if m.snapshotFunc != nil {
		return m.snapshotFunc(ctx)
	}
	return map[shared.PlayerID]*history.UserBattleHistory{}, nil
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedFinished(t *testing.T, store *battleinfra.MemoryStore, id shared.BattleID, hostA, hostB shared.PlayerID, scoreA, scoreB int64) {
	t.Helper()
	b, err := battle.NewBattle(id, battle.TypeQuick, battle.SideInfo{RoomID: shared.RoomID("room-" + hostA), HostID: hostA}, start)
	if err != nil {
		t.Fatalf("NewBattle() error = %v", err)
	}
	steps := []func() error{
		func() error { return b.Accept(battle.SideInfo{RoomID: shared.RoomID("room-" + hostB), HostID: hostB}, start) },
		func() error { return b.Activate(start, time.Minute) },
		func() error {
			if scoreA == 0 {
				return nil
			}
			return b.ApplyGift(b.SideA.RoomID, "fan", scoreA, start)
		},
		func() error {
			if scoreB == 0 {
				return nil
			}
			return b.ApplyGift(b.SideB.RoomID, "fan", scoreB, start)
		},
		func() error { return b.Finish(start.Add(time.Minute)) },
		func() error { return store.Create(context.Background(), b) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestService_TopByTotalScore(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	seedFinished(t, store, "b1", "alice", "bob", 50, 30)
	seedFinished(t, store, "b2", "carol", "alice", 20, 20)
	seedFinished(t, store, "b3", "bob", "carol", 40, 10)

	svc := leaderboardsvc.NewService(store, nil)
	got, err := svc.TopByTotalScore(context.Background(), 0)
	if err != nil {
		t.Fatalf("TopByTotalScore() error = %v", err)
	}

	want := []struct {
		rank   int
		user   shared.PlayerID
		score  int64
		wins   int
		losses int
		draws  int
	}{
		{1, "alice", 70, 1, 0, 1},
		{1, "bob", 70, 1, 1, 0},
		{2, "carol", 30, 0, 1, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("TopByTotalScore() len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		e := got[i]
		if e.Rank != w.rank || e.UserID != w.user || e.TotalScore != w.score || e.Wins != w.wins || e.Losses != w.losses || e.Draws != w.draws {
			t.Errorf("row %d = %+v, want %+v", i, e, w)
		}
	}
	if got[0].WinRate != 0.5 {
		t.Errorf("alice WinRate = %v, want 0.5", got[0].WinRate)
	}
}

func TestService_TopByTotalScoreLimit(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	seedFinished(t, store, "b1", "alice", "bob", 5, 3)

	svc := leaderboardsvc.NewService(store, nil)
	got, err := svc.TopByTotalScore(context.Background(), 1)
	if err != nil {
		t.Fatalf("TopByTotalScore() error = %v", err)
	}
	if len(got) != 1 || got[0].UserID != "alice" {
		t.Errorf("TopByTotalScore(1) = %+v", got)
	}
}

func TestService_HistoryOverridesCounters(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	seedFinished(t, store, "b1", "alice", "bob", 5, 3)

	source := &mockHistorySource{
		snapshotFunc: func(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error) {
			return map[shared.PlayerID]*history.UserBattleHistory{
				"alice":   {UserID: "alice", Wins: 7, Losses: 3},
				"mallory": {UserID: "mallory", Wins: 99},
			}, nil
		},
	}
	svc := leaderboardsvc.NewService(store, source)
	got, err := svc.TopByTotalScore(context.Background(), 10)
	if err != nil {
		t.Fatalf("TopByTotalScore() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("TopByTotalScore() len = %d, want 2 (history-only users are not ranked)", len(got))
	}
	if got[0].Wins != 7 || got[0].Losses != 3 || got[0].WinRate != 0.7 {
		t.Errorf("alice = %+v, want 7-3 from history", got[0])
	}
}

func TestService_HistoryFailureFallsBack(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	seedFinished(t, store, "b1", "alice", "bob", 5, 3)

	source := &mockHistorySource{
		snapshotFunc: func(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error) {
			return nil, errors.New("history offline")
		},
	}
	svc := leaderboardsvc.NewService(store, source)
	got, err := svc.TopByTotalScore(context.Background(), 10)
	if err != nil {
		t.Fatalf("TopByTotalScore() error = %v", err)
	}
	if got[0].UserID != "alice" || got[0].Wins != 1 {
		t.Errorf("alice = %+v, want scanned counters", got[0])
	}
}

func TestService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := battleinfra.NewMemoryStore()
	seedFinished(t, store, "b1", "alice", "bob", 5, 3)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var seen []error
	source := &mockHistorySource{
		snapshotFunc: func(ctx context.Context) (map[shared.PlayerID]*history.UserBattleHistory, error) {
			once.Do(func() { close(entered) })
			<-release
			mu.Lock()
			seen = append(seen, ctx.Err())
			mu.Unlock()
			return map[shared.PlayerID]*history.UserBattleHistory{}, nil
		},
	}
	svc := leaderboardsvc.NewService(store, source)

	type result struct {
		entries int
		err     error
	}
	call := func(ctx context.Context, out chan<- result) {
		got, err := svc.TopByTotalScore(ctx, 10)
		out <- result{entries: len(got), err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan result, 1)
	go call(ctx, first)
	<-entered

	second := make(chan result, 1)
	go call(context.Background(), second)

	cancel()
	if r := <-first; !errors.Is(r.err, context.Canceled) {
		t.Errorf("cancelled TopByTotalScore() error = %v, wantErr %v", r.err, context.Canceled)
	}
	close(release)

	r := <-second
	if r.err != nil {
		t.Fatalf("TopByTotalScore() error = %v", r.err)
	}
	if r.entries != 2 {
		t.Errorf("TopByTotalScore() entries = %d, want 2", r.entries)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, err := range seen {
		if err != nil {
			t.Errorf("shared scan saw context error %v", err)
		}
	}
}

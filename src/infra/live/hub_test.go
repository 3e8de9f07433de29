package live_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/infra/live"
)

func newBattle(t *testing.T) *battle.Battle {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := battle.NewBattle("b-1", battle.TypeQuick, battle.SideInfo{RoomID: "room-a", HostID: "host-a"}, now)
	require.NoError(t, err)
	require.NoError(t, b.Accept(battle.SideInfo{RoomID: "room-b", HostID: "host-b"}, now))
	require.NoError(t, b.Activate(now, time.Minute))
	return b
}

func readSnapshot(t *testing.T, conn *websocket.Conn) live.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var snap live.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestHub_StreamsSnapshots(t *testing.T) {
	hub := live.NewHub(nil)
	b := newBattle(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, b.ID, b)
	}))
	defer srv.Close()
	defer hub.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readSnapshot(t, conn)
	require.Equal(t, "b-1", initial.ID)
	require.Equal(t, "active", initial.Status)
	require.NotNil(t, initial.SideB)

	require.Eventually(t, func() bool { return hub.Viewers(b.ID) == 1 }, 2*time.Second, 5*time.Millisecond)

	next := b.Clone()
	require.NoError(t, next.ApplyGift("room-b", "fan", 12, time.Now()))
	require.NoError(t, hub.Publish(context.Background(), next))

	update := readSnapshot(t, conn)
	require.Equal(t, int64(12), update.SideB.Score)
	require.Equal(t, 1, update.SideB.SupporterCount)
}

func TestHub_ViewerLeaves(t *testing.T) {
	hub := live.NewHub(nil)
	b := newBattle(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, b.ID, nil)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Viewers(b.ID) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Viewers(b.ID) == 0 }, 2*time.Second, 5*time.Millisecond)

	// publishing with nobody watching is a no-op
	require.NoError(t, hub.Publish(context.Background(), b))
}

func TestNewSnapshot_Rewards(t *testing.T) {
	b := newBattle(t)
	require.NoError(t, b.ApplyGift("room-a", "fan", 3, time.Now()))
	require.NoError(t, b.Finish(time.Now()))
	b.Rewards = battle.ComputeRewards(b)

	snap := live.NewSnapshot(b)
	require.Equal(t, "room-a", snap.WinnerRoomID)
	require.NotNil(t, snap.Rewards)
	require.Equal(t, "host-a", snap.Rewards.Winner.UserID)
	require.Equal(t, int64(500), snap.Rewards.Winner.Coins)
	require.Equal(t, int64(10), snap.Rewards.Loser.Diamonds)
}

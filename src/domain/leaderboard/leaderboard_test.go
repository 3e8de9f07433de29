package leaderboard_test

import (
	"testing"

	"github.com/sandai/pkbattle/src/domain/leaderboard"
)

func TestRank(t *testing.T) {
	tally := leaderboard.NewTally()
	tally.AddScore("carol", 300)
	tally.AddWin("carol")
	tally.AddScore("alice", 500)
	tally.AddWin("alice")
	tally.AddScore("bob", 300)
	tally.AddLoss("bob")
	tally.AddScore("dave", 100)
	tally.AddDraw("dave")

	got := tally.Rank(0)
	want := []struct {
		user string
		rank int
	}{{"alice", 1}, {"bob", 2}, {"carol", 2}, {"dave", 3}}
	if len(got) != len(want) {
		t.Fatalf("Rank() returned %d rows, want %d", len(got), len(want))
	}
	for i, w := range want {
		if string(got[i].UserID) != w.user || got[i].Rank != w.rank {
			t.Errorf("row %d = %s/%d, want %s/%d", i, got[i].UserID, got[i].Rank, w.user, w.rank)
		}
	}
	if got[0].WinRate != 1 || got[1].WinRate != 0 {
		t.Errorf("unexpected win rates %v %v", got[0].WinRate, got[1].WinRate)
	}

	if top := tally.Rank(2); len(top) != 2 || top[1].UserID != "bob" {
		t.Errorf("Rank(2) = %+v", top)
	}
}

func TestSetRecordOnlyTouchesKnownUsers(t *testing.T) {
	tally := leaderboard.NewTally()
	tally.AddScore("alice", 10)
	tally.SetRecord("alice", 3, 1, 0)
	tally.SetRecord("ghost", 9, 9, 9)

	rows := tally.Rank(10)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].Wins != 3 || rows[0].WinRate != 0.75 {
		t.Errorf("row = %+v", rows[0])
	}
}

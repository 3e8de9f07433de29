package history_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sandai/pkbattle/src/domain/history"
	"github.com/sandai/pkbattle/src/domain/shared"
)

func TestRecord(t *testing.T) {
	type step struct {
		result history.Result
		score  int64
	}
	tests := []struct {
		name  string
		steps []step
		want  history.UserBattleHistory
	}{
		{
			name:  "win streak",
			steps: []step{{history.ResultWin, 10}, {history.ResultWin, 30}, {history.ResultWin, 20}},
			want:  history.UserBattleHistory{TotalBattles: 3, Wins: 3, CurrentStreak: 3, BestStreak: 3, HighestScore: 30, TotalContributed: 60},
		},
		{
			name:  "loss resets streak",
			steps: []step{{history.ResultWin, 5}, {history.ResultWin, 5}, {history.ResultLoss, 50}, {history.ResultWin, 1}},
			want:  history.UserBattleHistory{TotalBattles: 4, Wins: 3, Losses: 1, CurrentStreak: 1, BestStreak: 2, HighestScore: 50, TotalContributed: 61},
		},
		{
			name:  "draw keeps streak",
			steps: []step{{history.ResultWin, 5}, {history.ResultDraw, 7}, {history.ResultWin, 1}},
			want:  history.UserBattleHistory{TotalBattles: 3, Wins: 2, Draws: 1, CurrentStreak: 2, BestStreak: 2, HighestScore: 7, TotalContributed: 13},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := history.New("host-a")
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			now := time.Now()
			for _, s := range tt.steps {
				if err := h.Record(s.result, s.score, now); err != nil {
					t.Fatalf("Record() error = %v", err)
				}
			}
			tt.want.UserID = "host-a"
			tt.want.UpdatedAt = now
			if *h != tt.want {
				t.Errorf("history = %+v, want %+v", *h, tt.want)
			}
			if h.TotalBattles != h.Wins+h.Losses+h.Draws {
				t.Errorf("totals do not add up: %+v", *h)
			}
		})
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	h, _ := history.New("host-a")
	if err := h.Record("tie", 1, time.Now()); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("Record() unknown result error = %v", err)
	}
	if err := h.Record(history.ResultWin, -1, time.Now()); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("Record() negative score error = %v", err)
	}
	if h.TotalBattles != 0 {
		t.Errorf("rejected records must not count, got %d", h.TotalBattles)
	}
	if _, err := history.New(""); err == nil {
		t.Errorf("New() with empty user should fail")
	}
}

package leaderboard

import (
	"sort"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Entry is one ranked row of the total-score leaderboard.
type Entry struct {
	Rank       int
	UserID     shared.PlayerID
	Wins       int
	Losses     int
	Draws      int
	WinRate    float64
	TotalScore int64
}

// Battles is the number of decided and drawn battles behind the entry.
func (e Entry) Battles() int {
	return e.Wins + e.Losses + e.Draws
}

// Tally accumulates per-user totals before ranking.
type Tally struct {
	entries map[shared.PlayerID]*Entry
}

func NewTally() *Tally {
	return &Tally{entries: make(map[shared.PlayerID]*Entry)}
}

func (t *Tally) entry(user shared.PlayerID) *Entry {
	e, ok := t.entries[user]
	if !ok {
		e = &Entry{UserID: user}
		t.entries[user] = e
	}
	return e
}

func (t *Tally) AddScore(user shared.PlayerID, score int64) {
	t.entry(user).TotalScore += score
}

func (t *Tally) AddWin(user shared.PlayerID)  { t.entry(user).Wins++ }
func (t *Tally) AddLoss(user shared.PlayerID) { t.entry(user).Losses++ }
func (t *Tally) AddDraw(user shared.PlayerID) { t.entry(user).Draws++ }

// SetRecord replaces the scanned counters with authoritative ones.
func (t *Tally) SetRecord(user shared.PlayerID, wins, losses, draws int) {
	if _, ok := t.entries[user]; !ok {
		return
	}
	e := t.entries[user]
	e.Wins, e.Losses, e.Draws = wins, losses, draws
}

// Users lists every user the tally has seen.
func (t *Tally) Users() []shared.PlayerID {
	users := make([]shared.PlayerID, 0, len(t.entries))
	for user := range t.entries {
		users = append(users, user)
	}
	return users
}

// Rank sorts by total score descending with ties broken by user id, and
// assigns dense ranks starting at 1. limit <= 0 returns every entry.
func (t *Tally) Rank(limit int) []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		row := *e
		if n := row.Battles(); n > 0 {
			row.WinRate = float64(row.Wins) / float64(n)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].UserID < out[j].UserID
	})
	rank := 0
	for i := range out {
		if i == 0 || out[i].TotalScore != out[i-1].TotalScore {
			rank++
		}
		out[i].Rank = rank
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

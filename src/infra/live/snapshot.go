package live

import (
	"time"

	"github.com/sandai/pkbattle/src/domain/battle"
)

// SideView is the wire form of one battle side.
type SideView struct {
	RoomID         string `json:"room_id"`
	HostID         string `json:"host_id"`
	DisplayName    string `json:"display_name,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Score          int64  `json:"score"`
	SupporterCount int    `json:"supporter_count"`
}

type ShareView struct {
	UserID   string `json:"user_id"`
	RoomID   string `json:"room_id"`
	Coins    int64  `json:"coins"`
	Diamonds int64  `json:"diamonds"`
	Paid     bool   `json:"paid"`
}

type RewardsView struct {
	Winner ShareView `json:"winner"`
	Loser  ShareView `json:"loser"`
}

// Snapshot is the JSON view of a battle shared by the HTTP API and the
// live feed.
type Snapshot struct {
	ID                 string       `json:"id"`
	Type               string       `json:"type"`
	Status             string       `json:"status"`
	SideA              SideView     `json:"side_a"`
	SideB              *SideView    `json:"side_b,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	CountdownStartedAt *time.Time   `json:"countdown_started_at,omitempty"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	EndedAt            *time.Time   `json:"ended_at,omitempty"`
	FinishedAt         *time.Time   `json:"finished_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	WinnerRoomID       string       `json:"winner_room_id,omitempty"`
	Rewards            *RewardsView `json:"rewards,omitempty"`
	SettledAt          *time.Time   `json:"settled_at,omitempty"`
	Version            int64        `json:"version"`
}

func sideView(s battle.Side) SideView {
	return SideView{
		RoomID:         string(s.RoomID),
		HostID:         string(s.HostID),
		DisplayName:    s.DisplayName,
		AvatarURL:      s.AvatarURL,
		Score:          s.Score,
		SupporterCount: s.SupporterCount,
	}
}

func shareView(s battle.RewardShare) ShareView {
	return ShareView{
		UserID:   string(s.UserID),
		RoomID:   string(s.RoomID),
		Coins:    s.Amount.Coins,
		Diamonds: s.Amount.Diamonds,
		Paid:     s.Paid,
	}
}

func NewSnapshot(b *battle.Battle) Snapshot {
	snap := Snapshot{
		ID:                 string(b.ID),
		Type:               string(b.Type),
		Status:             string(b.Status),
		SideA:              sideView(b.SideA),
		CreatedAt:          b.CreatedAt,
		CountdownStartedAt: b.CountdownStartedAt,
		StartedAt:          b.StartedAt,
		EndedAt:            b.EndedAt,
		FinishedAt:         b.FinishedAt,
		CancelledAt:        b.CancelledAt,
		WinnerRoomID:       string(b.WinnerRoomID),
		SettledAt:          b.SettledAt,
		Version:            b.Version,
	}
	if b.SideB != nil {
		side := sideView(*b.SideB)
		snap.SideB = &side
	}
	if b.Rewards != nil {
		snap.Rewards = &RewardsView{
			Winner: shareView(b.Rewards.Winner),
			Loser:  shareView(b.Rewards.Loser),
		}
	}
	return snap
}

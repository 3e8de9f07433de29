package battle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

func TestInviteLifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b, _ := battle.NewBattle("b1", battle.TypeQuick, hostA, now)

	if _, err := battle.NewInvite("i0", b, "room-a", now, time.Minute); !errors.Is(err, battle.ErrSameRoom) {
		t.Errorf("NewInvite() to own room error = %v", err)
	}

	tests := []struct {
		name    string
		act     func(inv *battle.Invite) error
		want    battle.InviteStatus
		wantErr error
	}{
		{
			name: "accept in time",
			act:  func(inv *battle.Invite) error { return inv.Accept(now.Add(59 * time.Second)) },
			want: battle.InviteAccepted,
		},
		{
			name: "accept exactly at expiry",
			act:  func(inv *battle.Invite) error { return inv.Accept(now.Add(time.Minute)) },
			want: battle.InviteAccepted,
		},
		{
			name:    "accept after expiry",
			act:     func(inv *battle.Invite) error { return inv.Accept(now.Add(61 * time.Second)) },
			want:    battle.InvitePending,
			wantErr: shared.ErrExpired,
		},
		{
			name: "reject",
			act:  func(inv *battle.Invite) error { return inv.Reject(now) },
			want: battle.InviteRejected,
		},
		{
			name: "accept after reject",
			act: func(inv *battle.Invite) error {
				_ = inv.Reject(now)
				return inv.Accept(now)
			},
			want:    battle.InviteRejected,
			wantErr: shared.ErrInvalidState,
		},
		{
			name: "accept after expire",
			act: func(inv *battle.Invite) error {
				_ = inv.Expire(now.Add(time.Minute))
				return inv.Accept(now)
			},
			want:    battle.InviteExpired,
			wantErr: shared.ErrExpired,
		},
		{
			name: "expire after accept",
			act: func(inv *battle.Invite) error {
				_ = inv.Accept(now)
				return inv.Expire(now.Add(time.Minute))
			},
			want:    battle.InviteAccepted,
			wantErr: shared.ErrInvalidState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := battle.NewInvite("i1", b, "room-b", now, time.Minute)
			if err != nil {
				t.Fatalf("NewInvite() error = %v", err)
			}
			if err := tt.act(inv); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if inv.Status != tt.want {
				t.Errorf("Expected status %v, got %v", tt.want, inv.Status)
			}
		})
	}
}

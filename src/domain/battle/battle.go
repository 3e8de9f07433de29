package battle

import (
	"fmt"
	"time"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// Type fixes a battle's duration and reward tier.
type Type string

const (
	TypeQuick    Type = "quick"
	TypeStandard Type = "standard"
	TypeRanked   Type = "ranked"
)

// Validate rejects unknown battle types.
func (t Type) Validate() error {
	switch t {
	case TypeQuick, TypeStandard, TypeRanked:
		return nil
	}
	return fmt.Errorf("%w: unknown battle type %q", shared.ErrValidation, string(t))
}

// DefaultDurations holds the active-phase length of each battle type.
var DefaultDurations = map[Type]time.Duration{
	TypeQuick:    180 * time.Second,
	TypeStandard: 300 * time.Second,
	TypeRanked:   600 * time.Second,
}

// Status is the lifecycle state of a battle.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusWaiting:   {StatusCountdown, StatusCancelled},
	StatusCountdown: {StatusActive, StatusCancelled},
	StatusActive:    {StatusFinished},
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// SideInfo is what a host supplies when joining a battle.
type SideInfo struct {
	RoomID      shared.RoomID
	HostID      shared.PlayerID
	DisplayName string
	AvatarURL   string
}

// Validate ensures the room and host are present.
func (info SideInfo) Validate() error {
	if err := info.RoomID.Validate(); err != nil {
		return err
	}
	return info.HostID.Validate()
}

// Side is one of the two competing rooms.
type Side struct {
	RoomID         shared.RoomID
	HostID         shared.PlayerID
	DisplayName    string
	AvatarURL      string
	Score          int64
	SupporterCount int
	Supporters     map[shared.PlayerID]int64
}

func newSide(info SideInfo) Side {
	return Side{
		RoomID:      info.RoomID,
		HostID:      info.HostID,
		DisplayName: info.DisplayName,
		AvatarURL:   info.AvatarURL,
		Supporters:  make(map[shared.PlayerID]int64),
	}
}

func (s *Side) contribute(sender shared.PlayerID, value int64) {
	if s.Supporters == nil {
		s.Supporters = make(map[shared.PlayerID]int64)
	}
	s.Score += value
	s.Supporters[sender] += value
	s.SupporterCount = len(s.Supporters)
}

func (s Side) clone() Side {
	out := s
	out.Supporters = make(map[shared.PlayerID]int64, len(s.Supporters))
	for k, v := range s.Supporters {
		out.Supporters[k] = v
	}
	return out
}

// Battle aggregate is a single scored match between two rooms.
type Battle struct {
	ID                 shared.BattleID
	Type               Type
	Status             Status
	SideA              Side
	SideB              *Side
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CountdownStartedAt *time.Time
	StartedAt          *time.Time
	EndedAt            *time.Time
	FinishedAt         *time.Time
	CancelledAt        *time.Time
	WinnerRoomID       shared.RoomID
	Rewards            *Rewards
	SettledAt          *time.Time
	HistoryRecordedAt  *time.Time
	// Version is owned by the store and used for compare-and-set writes.
	Version int64
}

func NewBattle(id shared.BattleID, typ Type, sideA SideInfo, now time.Time) (*Battle, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	if err := sideA.Validate(); err != nil {
		return nil, err
	}
	return &Battle{
		ID:        id,
		Type:      typ,
		Status:    StatusWaiting,
		SideA:     newSide(sideA),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (b *Battle) transition(next Status, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}

// Accept fills side B and moves the battle into its countdown.
func (b *Battle) Accept(sideB SideInfo, now time.Time) error {
	if err := sideB.Validate(); err != nil {
		return err
	}
	if sideB.RoomID == b.SideA.RoomID {
		return ErrSameRoom
	}
	if err := b.transition(StatusCountdown, now); err != nil {
		return err
	}
	side := newSide(sideB)
	b.SideB = &side
	b.CountdownStartedAt = timePtr(now)
	return nil
}

// Activate opens scoring for the given duration.
func (b *Battle) Activate(now time.Time, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("%w: battle duration must be positive", shared.ErrValidation)
	}
	if err := b.transition(StatusActive, now); err != nil {
		return err
	}
	b.StartedAt = timePtr(now)
	b.EndedAt = timePtr(now.Add(duration))
	return nil
}

// Cancel is only legal before the battle becomes active.
func (b *Battle) Cancel(now time.Time) error {
	if err := b.transition(StatusCancelled, now); err != nil {
		return err
	}
	b.CancelledAt = timePtr(now)
	return nil
}

// Finish closes the battle and decides the winner. Equal scores leave
// WinnerRoomID empty. EndedAt keeps the planned end; FinishedAt is when
// scoring actually closed.
func (b *Battle) Finish(now time.Time) error {
	if err := b.transition(StatusFinished, now); err != nil {
		return err
	}
	b.FinishedAt = timePtr(now)
	switch outcome := b.Outcome(); outcome {
	case OutcomeSideA:
		b.WinnerRoomID = b.SideA.RoomID
	case OutcomeSideB:
		b.WinnerRoomID = b.SideB.RoomID
	}
	return nil
}

// ApplyGift credits value from sender to the side playing in roomID.
func (b *Battle) ApplyGift(roomID shared.RoomID, sender shared.PlayerID, value int64, now time.Time) error {
	if value <= 0 {
		return ErrGiftValue
	}
	if err := sender.Validate(); err != nil {
		return err
	}
	if b.Status != StatusActive {
		return fmt.Errorf("%w: battle is %s", ErrNotActive, b.Status)
	}
	side := b.SideFor(roomID)
	if side == nil {
		return ErrUnknownRoom
	}
	side.contribute(sender, value)
	b.UpdatedAt = now
	return nil
}

// SideFor returns the side playing in roomID, or nil.
func (b *Battle) SideFor(roomID shared.RoomID) *Side {
	if b.SideA.RoomID == roomID {
		return &b.SideA
	}
	if b.SideB != nil && b.SideB.RoomID == roomID {
		return b.SideB
	}
	return nil
}

// IsHost reports whether player hosts either side.
func (b *Battle) IsHost(player shared.PlayerID) bool {
	if b.SideA.HostID == player {
		return true
	}
	return b.SideB != nil && b.SideB.HostID == player
}

// InvolvesRoom reports whether room plays on either side.
func (b *Battle) InvolvesRoom(room shared.RoomID) bool {
	return b.SideFor(room) != nil
}

// Outcome compares the current scores.
type Outcome string

const (
	OutcomeSideA Outcome = "side_a"
	OutcomeSideB Outcome = "side_b"
	OutcomeDraw  Outcome = "draw"
)

func (b *Battle) Outcome() Outcome {
	var scoreB int64
	if b.SideB != nil {
		scoreB = b.SideB.Score
	}
	switch {
	case b.SideA.Score > scoreB:
		return OutcomeSideA
	case scoreB > b.SideA.Score:
		return OutcomeSideB
	default:
		return OutcomeDraw
	}
}

// Winner and Loser return the sides by outcome; both are nil on a draw.
func (b *Battle) Winner() *Side {
	switch b.Outcome() {
	case OutcomeSideA:
		return &b.SideA
	case OutcomeSideB:
		return b.SideB
	}
	return nil
}

func (b *Battle) Loser() *Side {
	switch b.Outcome() {
	case OutcomeSideA:
		return b.SideB
	case OutcomeSideB:
		return &b.SideA
	}
	return nil
}

// Settled reports whether settlement has fully run.
func (b *Battle) Settled() bool {
	return b.SettledAt != nil
}

// MarkSettled stamps the idempotency proof exactly once.
func (b *Battle) MarkSettled(now time.Time) error {
	if b.Status != StatusFinished {
		return fmt.Errorf("%w: cannot settle a %s battle", shared.ErrInvalidState, b.Status)
	}
	if b.SettledAt != nil {
		return ErrAlreadySettled
	}
	b.SettledAt = timePtr(now)
	b.UpdatedAt = now
	return nil
}

// MarkHistoryRecorded stamps that both hosts' results were handed to history.
func (b *Battle) MarkHistoryRecorded(now time.Time) error {
	if b.Status != StatusFinished {
		return fmt.Errorf("%w: cannot record history for a %s battle", shared.ErrInvalidState, b.Status)
	}
	if b.HistoryRecordedAt != nil {
		return ErrHistoryRecorded
	}
	b.HistoryRecordedAt = timePtr(now)
	b.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (b *Battle) Clone() *Battle {
	if b == nil {
		return nil
	}
	out := *b
	out.SideA = b.SideA.clone()
	if b.SideB != nil {
		side := b.SideB.clone()
		out.SideB = &side
	}
	out.CountdownStartedAt = cloneTime(b.CountdownStartedAt)
	out.StartedAt = cloneTime(b.StartedAt)
	out.EndedAt = cloneTime(b.EndedAt)
	out.FinishedAt = cloneTime(b.FinishedAt)
	out.CancelledAt = cloneTime(b.CancelledAt)
	out.SettledAt = cloneTime(b.SettledAt)
	out.HistoryRecordedAt = cloneTime(b.HistoryRecordedAt)
	if b.Rewards != nil {
		rewards := *b.Rewards
		out.Rewards = &rewards
	}
	return &out
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

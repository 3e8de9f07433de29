package battles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/activity"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

// Finisher settles a battle. The caller holds the battle's lock.
type Finisher interface {
	Finish(ctx context.Context, id shared.BattleID) (*battle.Battle, error)
}

// Metrics observes lifecycle activity.
type Metrics interface {
	Transition(from, to battle.Status)
	GiftApplied(typ battle.Type, value int64)
	TimersPending(n int64)
}

type nopMetrics struct{}

func (nopMetrics) Transition(battle.Status, battle.Status) {}
func (nopMetrics) GiftApplied(battle.Type, int64)          {}
func (nopMetrics) TimersPending(int64)                     {}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, *battle.Battle) error { return nil }

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, []*activity.Event) error { return nil }

// Options tune invite, countdown and battle timing.
type Options struct {
	InviteTTL time.Duration
	Countdown time.Duration
	Durations map[battle.Type]time.Duration
	// ExclusiveRooms refuses to seat a room that already plays in an
	// unfinished battle.
	ExclusiveRooms bool
}

func DefaultOptions() Options {
	durations := make(map[battle.Type]time.Duration, len(battle.DefaultDurations))
	for typ, d := range battle.DefaultDurations {
		durations[typ] = d
	}
	return Options{
		InviteTTL: 60 * time.Second,
		Countdown: 10 * time.Second,
		Durations: durations,
	}
}

func (o Options) duration(typ battle.Type) time.Duration {
	if d, ok := o.Durations[typ]; ok && d > 0 {
		return d
	}
	return battle.DefaultDurations[typ]
}

// Service runs the battle lifecycle: invites, countdown, scoring and the
// hand-off to settlement. Every state change for one battle is serialized
// by that battle's lock and persisted with compare-and-set.
type Service struct {
	Battles  battle.Store
	Invites  battle.InviteStore
	Settler  Finisher
	Live     battle.Broadcaster
	Activity activity.Dispatcher
	Metrics  Metrics
	IDs      IDGenerator
	Clock    clockwork.Clock
	Logger   *zap.Logger
	Options  Options

	locks  *lockRegistry
	timers *timerRegistry
}

func NewService(battles battle.Store, invites battle.InviteStore, settler Finisher, ids IDGenerator) *Service {
	s := &Service{
		Battles:  battles,
		Invites:  invites,
		Settler:  settler,
		Live:     nopBroadcaster{},
		Activity: nopDispatcher{},
		Metrics:  nopMetrics{},
		IDs:      ids,
		Clock:    clockwork.NewRealClock(),
		Logger:   zap.NewNop(),
		Options:  DefaultOptions(),
		locks:    newLockRegistry(),
	}
	s.timers = newTimerRegistry(func(n int64) { s.Metrics.TimersPending(n) })
	return s
}

// Close stops every scheduled timer. Stored state is left as is so a later
// Recover can re-arm it.
func (s *Service) Close() {
	s.timers.stopAll()
}

func (s *Service) GetBattle(ctx context.Context, id shared.BattleID) (*battle.Battle, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.Battles.Get(ctx, id)
}

func (s *Service) ListByRoom(ctx context.Context, room shared.RoomID) ([]*battle.Battle, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}
	return s.Battles.ListByRoom(ctx, room)
}

func (s *Service) ListGifts(ctx context.Context, id shared.BattleID) ([]*battle.GiftEvent, error) {
	if _, err := s.GetBattle(ctx, id); err != nil {
		return nil, err
	}
	return s.Battles.ListGifts(ctx, id)
}

func (s *Service) now() time.Time {
	return s.Clock.Now().UTC()
}

func (s *Service) roomBusy(ctx context.Context, room shared.RoomID) (bool, error) {
	if !s.Options.ExclusiveRooms {
		return false, nil
	}
	battles, err := s.Battles.ListByRoom(ctx, room)
	if err != nil {
		return false, err
	}
	for _, b := range battles {
		if !b.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// stateConflict reports a lost compare-and-set as an invalid transition.
func stateConflict(err error) error {
	if errors.Is(err, shared.ErrConflict) {
		return fmt.Errorf("%w: lost a concurrent update", shared.ErrInvalidState)
	}
	return err
}

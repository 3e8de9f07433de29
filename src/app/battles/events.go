package battles

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/activity"
	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/domain/shared"
)

const (
	activityTimeout = 5 * time.Second
	callbackTimeout = 10 * time.Second
)

// record ships an activity event in the background. Failures are logged
// and never reach the caller.
func (s *Service) record(name activity.EventName, id shared.BattleID, decorate func(*activity.Event)) {
	event, err := activity.NewEvent(name, id, s.now())
	if err != nil {
		s.Logger.Warn("build activity event", zap.String("event", string(name)), zap.Error(err))
		return
	}
	if decorate != nil {
		decorate(event)
	}
	dispatcher := s.Activity
	logger := s.Logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()
		if err := dispatcher.Dispatch(ctx, []*activity.Event{event}); err != nil {
			logger.Warn("dispatch activity event",
				zap.String("event", string(event.Name)),
				zap.String("battle_id", string(event.BattleID)),
				zap.Error(err),
			)
		}
	}()
}

// publish pushes a snapshot to live viewers.
func (s *Service) publish(ctx context.Context, b *battle.Battle) {
	if err := s.Live.Publish(ctx, b.Clone()); err != nil {
		s.Logger.Warn("publish battle snapshot", zap.String("battle_id", string(b.ID)), zap.Error(err))
	}
}

func (s *Service) transitioned(from, to battle.Status, b *battle.Battle) {
	s.Metrics.Transition(from, to)
	s.Logger.Info("battle transition",
		zap.String("battle_id", string(b.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// callbackContext bounds the work a timer callback may do.
func callbackContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callbackTimeout)
}

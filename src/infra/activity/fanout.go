package activity

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/activity"
)

// Fanout sends every batch to each dispatcher and joins their errors.
type Fanout []activity.Dispatcher

func (f Fanout) Dispatch(ctx context.Context, events []*activity.Event) error {
	var errs error
	for _, d := range f {
		errs = multierr.Append(errs, d.Dispatch(ctx, events))
	}
	return errs
}

// LogDispatcher writes events to a zap logger. It backs local setups with
// no external activity sink.
type LogDispatcher struct {
	Logger *zap.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, events []*activity.Event) error {
	for _, event := range events {
		d.Logger.Info("battle activity",
			zap.String("event", string(event.Name)),
			zap.String("battle_id", string(event.BattleID)),
			zap.String("user_id", string(event.UserID)),
			zap.String("room_id", string(event.RoomID)),
			zap.Any("properties", event.Properties),
			zap.Time("timestamp", event.Timestamp),
		)
	}
	return nil
}

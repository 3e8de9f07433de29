package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/app/battles"
)

// Recoverer re-arms lost timers and settles overdue battles.
type Recoverer interface {
	Recover(ctx context.Context) (battles.RecoveryReport, error)
}

// Recovery runs the battle recovery sweep on a fixed interval. Overlapping
// runs are skipped.
type Recovery struct {
	scheduler gocron.Scheduler
}

func StartRecovery(clock clockwork.Clock, interval time.Duration, target Recoverer, logger *zap.Logger) (*Recovery, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			report, err := target.Recover(ctx)
			if err != nil {
				logger.Warn("battle recovery sweep", zap.Error(err))
			}
			if report != (battles.RecoveryReport{}) {
				logger.Info("battle recovery sweep",
					zap.Int("timers_armed", report.TimersArmed),
					zap.Int("activated", report.Activated),
					zap.Int("finished", report.Finished),
					zap.Int("resettled", report.Resettled),
					zap.Int("invites_expired", report.InvitesExpired),
				)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("battle-recovery"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	return &Recovery{scheduler: sched}, nil
}

func (r *Recovery) Stop() error {
	return r.scheduler.Shutdown()
}

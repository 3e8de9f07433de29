package battles

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/domain/battle"
)

// RecoveryReport counts what a sweep touched.
type RecoveryReport struct {
	TimersArmed    int
	Activated      int
	Finished       int
	Resettled      int
	InvitesExpired int
}

// Recover re-arms timers lost to a restart and applies transitions whose
// deadline already passed. Battles and invites that still have a live
// timer are skipped, so running it periodically is safe.
func (s *Service) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	var errs error

	open, err := s.Battles.ListActive(ctx)
	if err != nil {
		return report, err
	}
	now := s.now()
	for _, b := range open {
		id := b.ID
		key := battleTimerKey(id)
		if s.timers.armed(key) {
			continue
		}
		switch b.Status {
		case battle.StatusCountdown:
			if b.CountdownStartedAt == nil {
				continue
			}
			remaining := b.CountdownStartedAt.Add(s.Options.Countdown).Sub(now)
			if remaining > 0 {
				s.timers.schedule(s.Clock, key, remaining, func() { s.onCountdownElapsed(id) })
				report.TimersArmed++
				continue
			}
			unlock := s.locks.acquire(id)
			_, err := s.activateLocked(ctx, id)
			unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			report.Activated++
		case battle.StatusActive:
			if b.EndedAt != nil {
				if remaining := b.EndedAt.Sub(now); remaining > 0 {
					s.timers.schedule(s.Clock, key, remaining, func() { s.onBattleElapsed(id) })
					report.TimersArmed++
					continue
				}
			}
			if _, err := s.finish(ctx, id); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			report.Finished++
		}
	}

	finished, err := s.Battles.ListFinished(ctx)
	if err != nil {
		return report, multierr.Append(errs, err)
	}
	for _, b := range finished {
		if b.Settled() {
			continue
		}
		if _, err := s.finish(ctx, b.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		report.Resettled++
	}

	pending, err := s.Invites.ListPending(ctx)
	if err != nil {
		return report, multierr.Append(errs, err)
	}
	for _, inv := range pending {
		id := inv.ID
		key := inviteTimerKey(id)
		if s.timers.armed(key) {
			continue
		}
		if remaining := inv.ExpiresAt.Sub(now); remaining > 0 {
			s.timers.schedule(s.Clock, key, remaining, func() { s.expireInvite(id) })
			report.TimersArmed++
			continue
		}
		s.expireInvite(id)
		report.InvitesExpired++
	}

	if errs != nil {
		s.Logger.Warn("recovery sweep finished with errors", zap.Error(errs))
	}
	return report, errs
}

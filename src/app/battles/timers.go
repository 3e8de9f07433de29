package battles

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/sandai/pkbattle/src/domain/shared"
)

func battleTimerKey(id shared.BattleID) string { return "battle:" + string(id) }
func inviteTimerKey(id shared.InviteID) string { return "invite:" + string(id) }

// timerRegistry keeps at most one live timer per key. A battle key holds
// either the countdown or the end timer; an invite key holds its expiry.
type timerRegistry struct {
	mu       sync.Mutex
	timers   map[string]clockwork.Timer
	pending  atomic.Int64
	onChange func(int64)
}

func newTimerRegistry(onChange func(int64)) *timerRegistry {
	return &timerRegistry{
		timers:   make(map[string]clockwork.Timer),
		onChange: onChange,
	}
}

// schedule arms fn after d, replacing any timer under the same key.
func (r *timerRegistry) schedule(clock clockwork.Clock, key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[key]; ok {
		old.Stop()
		r.pending.Dec()
	}
	var timer clockwork.Timer
	timer = clock.AfterFunc(d, func() {
		r.mu.Lock()
		if current, ok := r.timers[key]; ok && current == timer {
			delete(r.timers, key)
			r.notify(r.pending.Dec())
		}
		r.mu.Unlock()
		fn()
	})
	r.timers[key] = timer
	r.notify(r.pending.Inc())
}

// stop cancels the timer under key and reports whether one was armed.
func (r *timerRegistry) stop(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer, ok := r.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, key)
	r.notify(r.pending.Dec())
	return true
}

func (r *timerRegistry) armed(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[key]
	return ok
}

func (r *timerRegistry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}
	r.pending.Store(0)
	r.notify(0)
}

func (r *timerRegistry) count() int64 {
	return r.pending.Load()
}

func (r *timerRegistry) notify(n int64) {
	if r.onChange != nil {
		r.onChange(n)
	}
}

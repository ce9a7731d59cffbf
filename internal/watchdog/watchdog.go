// Package watchdog sweeps a session registry on a fixed interval, retiring
// timed-out sessions and reaping the ones whose I/O workers have both
// exited, then, if the registry is empty, creating one idle session for the
// next tab to claim.
package watchdog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sessiongate/internal/session"
)

// Config controls sweep timing.
type Config struct {
	// Interval is how often the registry is swept.
	Interval time.Duration
	// SessionTimeout is how long a non-idle session may go untouched
	// before the watchdog marks it Terminating.
	SessionTimeout time.Duration
}

// Watchdog owns the periodic sweep of one Registry.
type Watchdog struct {
	cfg Config
	reg *session.Registry
	log *logrus.Logger

	// OnSweep, if set, is called during a sweep that reaps sessions
	// ("reaped") or replenishes the idle pool ("replenished"), with the
	// resulting session count and that label. Used to drive
	// the optional admin monitor without coupling this package to it.
	OnSweep func(count int, event string)
}

// New builds a Watchdog bound to reg.
func New(cfg Config, reg *session.Registry, log *logrus.Logger) *Watchdog {
	return &Watchdog{cfg: cfg, reg: reg, log: log}
}

// Run blocks, sweeping on cfg.Interval, until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep performs one pass: mark timed-out sessions Terminating, reap dead
// ones, and replenish the idle pool.
func (w *Watchdog) sweep() {
	now := time.Now()

	var zombies []string
	w.reg.ForEach(func(s *session.Session) {
		if s.Status == session.Normal && !s.IsIdle {
			expired := now.Sub(s.LastTouch) > w.cfg.SessionTimeout
			if expired || s.ShouldTerminate {
				s.Status = session.Terminating
			}
		}
		if s.Dead() {
			zombies = append(zombies, s.Token)
		}
	})

	for _, tok := range zombies {
		w.reap(tok)
	}

	if len(zombies) > 0 {
		w.log.WithField("count", w.reg.Count()).Info("watchdog reaped sessions")
		w.notify("reaped")
	}

	if w.reg.Count() == 0 {
		if _, err := w.reg.Create(true); err != nil {
			w.log.WithError(err).Warn("watchdog failed to replenish idle session")
		} else {
			w.log.Info("watchdog replenished idle session")
			w.notify("replenished")
		}
	}
}

func (w *Watchdog) notify(event string) {
	if w.OnSweep != nil {
		w.OnSweep(w.reg.Count(), event)
	}
}

// reap tears down a session whose workers have both exited: kills the
// backend process, closes the pipes the gateway still owns, and drops it
// from the registry. The outbox worker already closes CtrlSock itself
// before clearing its liveness bit, so there is nothing left to close
// here under the lock — Kill/ClosePipes are syscalls and run unlocked.
func (w *Watchdog) reap(token string) {
	s, ok := w.reg.Lookup(token)
	if !ok {
		return
	}
	_ = s.Kill()
	s.ClosePipes()
	w.reg.Remove(token)
}

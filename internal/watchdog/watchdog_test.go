package watchdog

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"sessiongate/internal/backend"
	"sessiongate/internal/session"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSweepReplenishesIdlePool(t *testing.T) {
	reg := session.NewRegistry(4, backend.Config{Path: "/bin/sh", Args: []string{"-c", "echo 0; sleep 5"}}, testLogger())
	w := New(Config{Interval: time.Hour, SessionTimeout: time.Hour}, reg, testLogger())

	if reg.Count() != 0 {
		t.Fatalf("Count = %d, want 0", reg.Count())
	}

	w.sweep()

	if reg.Count() != 1 {
		t.Fatalf("Count after sweep = %d, want 1", reg.Count())
	}
}

func TestSweepMarksTimedOutSessionsTerminating(t *testing.T) {
	// Only Normal sessions time out, so the backend must complete the port
	// handshake; the mock backend announces a real, dialable port.
	reg := session.NewRegistry(4, backend.Config{Path: "go", Args: []string{"run", "sessiongate/internal/session/testdata/mockbackend"}}, testLogger())
	w := New(Config{Interval: time.Hour, SessionTimeout: time.Millisecond}, reg, testLogger())

	tok, err := reg.Create(false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	waitFor(t, 10*time.Second, func() bool {
		var normal bool
		reg.With(tok, func(s *session.Session) { normal = s.Status == session.Normal })
		return normal
	})

	time.Sleep(5 * time.Millisecond)
	w.sweep()

	var status session.Status
	if err := reg.With(tok, func(s *session.Session) { status = s.Status }); err == nil {
		if status != session.Terminating {
			t.Fatalf("status = %v, want Terminating", status)
		}
	}
	// The session may already have been reaped by the same sweep if its
	// workers had both exited by then; either outcome is acceptable here.
}

func TestSweepReapsZombies(t *testing.T) {
	reg := session.NewRegistry(4, backend.Config{Path: "/bin/sh", Args: []string{"-c", "echo 0; sleep 5"}}, testLogger())
	w := New(Config{Interval: time.Hour, SessionTimeout: time.Hour}, reg, testLogger())

	tok, err := reg.Create(false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reg.With(tok, func(s *session.Session) { s.Status = session.Terminating })

	waitFor(t, 2*time.Second, func() bool {
		var dead bool
		reg.With(tok, func(s *session.Session) { dead = s.Dead() })
		return dead
	})

	w.sweep()

	if _, ok := reg.Lookup(tok); ok {
		t.Fatalf("session %s still present after sweep reaped it", tok)
	}
}

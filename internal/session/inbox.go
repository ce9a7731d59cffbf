package session

import (
	"errors"
	"os"
	"time"

	"sessiongate/internal/protocol"
)

const (
	inboxIdleSleep   = 10 * time.Microsecond
	inboxWriteBudget = 100 * time.Millisecond
)

// inboxWorker delivers a session's pending raw keystrokes and framed
// messages to its backend. It follows the lock discipline used throughout
// this package: snapshot what needs writing under the lock, release it,
// perform the actual write, then reacquire the lock to record the result.
// Nothing here holds the registry lock across a syscall.
func inboxWorker(r *Registry, token string) {
	defer func() {
		r.mu.Lock()
		if s, ok := r.sessions[token]; ok {
			s.InboxAlive = false
		}
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		s, ok := r.sessions[token]
		if !ok {
			r.mu.Unlock()
			return
		}
		if s.Status == Terminating {
			r.mu.Unlock()
			return
		}

		hasText := s.Status == Normal && len(s.InboxText) > 0
		hasMsgs := len(s.InboxMsgs) > 0

		if !hasText && !hasMsgs {
			r.mu.Unlock()
			time.Sleep(inboxIdleSleep)
			continue
		}

		var textSnapshot []byte
		var stdin *os.File
		if hasText {
			textSnapshot = append([]byte(nil), s.InboxText...)
			stdin = s.handle.Stdin
		}

		var wireSnapshot []byte
		var ctrlSock = s.CtrlSock
		if hasMsgs && ctrlSock != nil {
			for _, m := range s.InboxMsgs {
				wireSnapshot = protocol.Encode(wireSnapshot, m)
			}
		}
		r.mu.Unlock()

		var written int = -1
		if len(textSnapshot) > 0 {
			written = writeWithBudget(stdin, textSnapshot, inboxWriteBudget)
		}

		var sockErr error
		if len(wireSnapshot) > 0 {
			_, sockErr = ctrlSock.Write(wireSnapshot)
		}

		r.mu.Lock()
		s, ok = r.sessions[token]
		if !ok {
			r.mu.Unlock()
			return
		}
		if len(textSnapshot) > 0 {
			switch {
			case written < 0:
				s.InboxText = nil
			case written >= len(s.InboxText):
				s.InboxText = nil
			default:
				s.InboxText = s.InboxText[written:]
			}
		}
		if hasMsgs {
			if ctrlSock != nil {
				s.InboxMsgs = nil
				if sockErr != nil {
					s.Status = Terminating
				}
			}
			// If there was no control socket yet, leave InboxMsgs queued —
			// they'll be flushed once the outbox worker completes the
			// handshake and installs CtrlSock.
		}
		r.mu.Unlock()
	}
}

// writeWithBudget writes data to f, allowing up to budget for the write to
// become possible. It returns the number of bytes actually written, or -1
// if the write failed for a reason other than the deadline expiring.
func writeWithBudget(f *os.File, data []byte, budget time.Duration) int {
	_ = f.SetWriteDeadline(time.Now().Add(budget))
	n, err := f.Write(data)
	_ = f.SetWriteDeadline(time.Time{})
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return -1
	}
	return n
}

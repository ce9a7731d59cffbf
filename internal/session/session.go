// Package session implements the per-tenant Session record, the
// registry that indexes live sessions by token, and the two I/O workers
// that pump bytes between a session's backend pipes/control socket and its
// buffers.
package session

import (
	"net"
	"time"

	"sessiongate/internal/backend"
	"sessiongate/internal/protocol"
)

// Status is one of the three states a Session moves through. CtrlSock is
// non-nil iff Status == Normal.
type Status int

const (
	WaitingForPort Status = iota
	Normal
	Terminating
)

func (s Status) String() string {
	switch s {
	case WaitingForPort:
		return "waiting_for_port"
	case Normal:
		return "normal"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Session is a gateway-side record bound to exactly one backend child
// process and, after handshake, one TCP control socket. Every field here
// is guarded by the owning Registry's single mutex — there is no
// per-session lock. Callers outside this package should only observe
// Session fields through Registry methods that hold the lock for them.
type Session struct {
	Token  string
	Status Status
	IsIdle bool

	handle *backend.Handle

	// CtrlSock is non-nil iff Status == Normal.
	CtrlSock net.Conn

	InboxText  []byte
	InboxMsgs  []protocol.Message
	OutboxText []byte
	OutboxRaw  []byte
	OutboxMsgs []protocol.Message

	LastTouch       time.Time
	ShouldTerminate bool

	InboxAlive  bool
	OutboxAlive bool
}

// Pid returns the backend process's OS pid.
func (s *Session) Pid() int {
	return s.handle.Pid
}

// Dead reports whether both of the session's I/O workers have cleared
// their liveness bits — the sole condition under which the watchdog may
// reap a session.
func (s *Session) Dead() bool {
	return !s.InboxAlive && !s.OutboxAlive
}

// Kill terminates the backend process and reaps it. Safe to call once
// both I/O workers have exited (see Dead).
func (s *Session) Kill() error {
	return s.handle.Kill()
}

// ClosePipes closes the parent-owned ends of the backend's stdin/stdout
// pipes. Called by the watchdog once the process has been killed.
func (s *Session) ClosePipes() {
	s.handle.ClosePipes()
}

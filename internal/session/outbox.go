package session

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"sessiongate/internal/protocol"
)

const (
	outboxIdleSleep    = 10 * time.Microsecond
	outboxReadBudget   = 100 * time.Millisecond
	ctrlSockPollBudget = time.Millisecond
	stdoutChunkSize    = 4096
)

// wrapMalformed turns a raw protocol.ErrMalformed into the session-level
// sentinel, preserving errors.Is(err, protocol.ErrMalformed).
func wrapMalformed(token string) error {
	return fmt.Errorf("%w: token %s: %w", ErrMalformedFrame, token, protocol.ErrMalformed)
}

// outboxWorker pulls bytes out of a session's backend stdout and, once the
// handshake completes, its control socket, turning them into outbox text
// and decoded messages a dispatcher can hand back to the browser.
//
// While the session is WaitingForPort, stdout carries exactly one line: the
// decimal TCP port the backend bound for its control socket. Everything up
// to and including that newline is consumed as the handshake; bytes after
// it are discarded rather than carried into the session's outbox, mirroring
// the source protocol this one was modeled on.
func outboxWorker(r *Registry, token string) {
	defer func() {
		r.mu.Lock()
		if s, ok := r.sessions[token]; ok {
			if s.CtrlSock != nil {
				s.CtrlSock.Close()
				s.CtrlSock = nil
			}
			s.OutboxAlive = false
		}
		r.mu.Unlock()
	}()

	var pending []byte // accumulates stdout bytes while WaitingForPort

	for {
		r.mu.Lock()
		s, ok := r.sessions[token]
		if !ok {
			r.mu.Unlock()
			return
		}
		if s.Status == Terminating {
			if s.CtrlSock != nil {
				s.CtrlSock.Close()
				s.CtrlSock = nil
			}
			r.mu.Unlock()
			return
		}
		stdout := s.handle.Stdout
		r.mu.Unlock()

		gotStdout := drainInto(stdout, &pending, outboxReadBudget)

		r.mu.Lock()
		s, ok = r.sessions[token]
		if !ok {
			r.mu.Unlock()
			return
		}

		switch s.Status {
		case Normal:
			if len(pending) > 0 {
				s.OutboxText = append(s.OutboxText, pending...)
				pending = nil
			}
		case WaitingForPort:
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				r.mu.Unlock()
				if !gotStdout {
					time.Sleep(outboxIdleSleep)
				}
				continue
			}
			portLine := string(pending[:idx])
			pending = nil

			port, perr := strconv.Atoi(strings.TrimSpace(portLine))
			if perr != nil {
				s.Status = Terminating
				r.mu.Unlock()
				continue
			}
			r.mu.Unlock()

			conn, dialErr := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))

			r.mu.Lock()
			s, ok = r.sessions[token]
			if !ok {
				r.mu.Unlock()
				if conn != nil {
					conn.Close()
				}
				return
			}
			if dialErr != nil {
				s.Status = Terminating
				r.mu.Unlock()
				continue
			}
			s.CtrlSock = conn
			s.Status = Normal
			s.OutboxMsgs = append(s.OutboxMsgs, protocol.New(protocol.OutputReady))
		}

		gotSocket := false
		if s.Status == Normal && s.CtrlSock != nil {
			sock := s.CtrlSock
			r.mu.Unlock()

			chunk := readAvailable(sock, ctrlSockPollBudget)

			r.mu.Lock()
			s, ok = r.sessions[token]
			if !ok {
				r.mu.Unlock()
				return
			}
			if len(chunk) > 0 {
				s.OutboxRaw = append(s.OutboxRaw, chunk...)
				gotSocket = true
			}
		}

		malformed := false
		if msg, consumed, result := protocol.Decode(s.OutboxRaw); result == protocol.Decoded {
			remaining := make([]byte, len(s.OutboxRaw)-consumed)
			copy(remaining, s.OutboxRaw[consumed:])
			s.OutboxRaw = remaining
			s.OutboxMsgs = append(s.OutboxMsgs, msg)
		} else if result == protocol.Malformed {
			s.Status = Terminating
			malformed = true
		}

		r.mu.Unlock()

		if malformed {
			r.log.WithError(wrapMalformed(token)).Warn("outbox worker: malformed frame, terminating session")
		}

		if !gotStdout && !gotSocket {
			time.Sleep(outboxIdleSleep)
		}
	}
}

// drainInto reads whatever stdout has to offer within budget, appending it
// to *acc, and reports whether anything was read.
func drainInto(f *os.File, acc *[]byte, budget time.Duration) bool {
	got := false
	buf := make([]byte, stdoutChunkSize)
	for {
		_ = f.SetReadDeadline(time.Now().Add(budget))
		n, err := f.Read(buf)
		if n > 0 {
			*acc = append(*acc, buf[:n]...)
			got = true
		}
		if err != nil || n == 0 {
			break
		}
	}
	_ = f.SetReadDeadline(time.Time{})
	return got
}

// readAvailable performs a single bounded read on conn, returning whatever
// bytes were available within budget (possibly none).
func readAvailable(conn net.Conn, budget time.Duration) []byte {
	_ = conn.SetReadDeadline(time.Now().Add(budget))
	buf := make([]byte, stdoutChunkSize)
	n, _ := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})
	if n > 0 {
		return buf[:n]
	}
	return nil
}

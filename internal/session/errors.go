package session

import "errors"

var (
	// ErrAtCapacity is returned by Registry.Create/Harvest when the session
	// count already equals the configured maximum.
	ErrAtCapacity = errors.New("session: registry at capacity")
	// ErrSessionExpired is returned by Registry.With when a token names no
	// live session (it may never have existed, or may have already been
	// reaped).
	ErrSessionExpired = errors.New("session: unknown or expired token")
	// ErrMalformedFrame is logged when a control socket's bytes can never
	// produce a valid message at the current prefix. The logged error (see
	// wrapMalformed) wraps both this sentinel and protocol.ErrMalformed, so
	// callers can still match on the underlying protocol error with
	// errors.Is.
	ErrMalformedFrame = errors.New("session: malformed control socket frame")
)

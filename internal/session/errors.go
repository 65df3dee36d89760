package session

import "errors"

var (
	// ErrInvalidPointer means a pointer chain resolved to address zero. The
	// layout does not match the running game build.
	ErrInvalidPointer = errors.New("pointer chain resolved to zero")

	// ErrSeedDrift is returned when the day seed changes again after a
	// rollover correction was already applied.
	ErrSeedDrift = errors.New("day seed drifted after rollover correction")

	ErrPrepareFailed = errors.New("failed to prepare encounter")

	// ErrDesync means the observed game state does not match the expected
	// phase. The session restarts the application once before giving up.
	ErrDesync = errors.New("game state desynchronized")

	ErrConnectivityExhausted = errors.New("reconnect attempts exhausted")
)

// Package remote defines the contract the bot uses to observe and drive the
// target console: absolute memory access, pointer chains and input injection.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrConnection wraps every failure caused by the transport.
var ErrConnection = errors.New("remote connection lost")

type Button int

const (
	A Button = iota
	B
	X
	Y
	L
	R
	ZL
	ZR
	Plus
	Minus
	DUp
	DDown
	DLeft
	DRight
	Home
	Capture
)

var buttonNames = [...]string{"A", "B", "X", "Y", "L", "R", "ZL", "ZR", "PLUS", "MINUS", "DUP", "DDOWN", "DLEFT", "DRIGHT", "HOME", "CAPTURE"}

func (b Button) String() string {
	if int(b) < 0 || int(b) >= len(buttonNames) {
		return "UNKNOWN"
	}
	return buttonNames[b]
}

type Stick int

const (
	LeftStick Stick = iota
	RightStick
)

func (s Stick) String() string {
	if s == RightStick {
		return "RIGHT"
	}
	return "LEFT"
}

// Interface is implemented by anything that can talk to the target. Every
// call may block and may fail with an error wrapping ErrConnection.
type Interface interface {
	ReadBytes(ctx context.Context, addr uint64, n int) ([]byte, error)
	WriteBytes(ctx context.Context, addr uint64, data []byte) error
	ResolvePointerChain(ctx context.Context, chain []int64) (uint64, error)

	// Press taps a button, then waits after before returning.
	Press(ctx context.Context, b Button, after time.Duration) error
	// Hold keeps a button down for hold, then waits after.
	Hold(ctx context.Context, b Button, hold, after time.Duration) error
	SetStick(ctx context.Context, s Stick, x, y int16, duration time.Duration) error

	Screenshot(ctx context.Context) ([]byte, error)
	Reconnect(ctx context.Context) error
	Close() error
}

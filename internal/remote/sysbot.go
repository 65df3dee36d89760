package remote

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	commandTimeout = 10 * time.Second
	// pixelPeek returns a full jpeg as hex.
	screenshotTimeout = 30 * time.Second
	releaseTimeout    = 2 * time.Second
)

// SysBot speaks the line oriented sys-botbase command protocol over TCP.
type SysBot struct {
	addr   string
	dialer net.Dialer
	logger zerolog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func Dial(ctx context.Context, addr string, logger zerolog.Logger) (*SysBot, error) {
	c := &SysBot{
		addr:   addr,
		dialer: net.Dialer{Timeout: commandTimeout},
		logger: logger.With().Str("target", addr).Logger(),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SysBot) connect(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.logger.Info().Msg("connected to target")
	return nil
}

func (c *SysBot) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return c.connect(ctx)
}

func (c *SysBot) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// send writes one command and, when reply is set, reads one response line.
func (c *SysBot) send(ctx context.Context, cmd string, reply bool, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", fmt.Errorf("%w: not connected", ErrConnection)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
	}

	if _, err := c.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("%w: write %q: %v", ErrConnection, cmd, err)
	}
	if !reply {
		return "", nil
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: read reply to %q: %v", ErrConnection, cmd, err)
	}
	return strings.TrimSpace(line), nil
}

func (c *SysBot) ReadBytes(ctx context.Context, addr uint64, n int) ([]byte, error) {
	line, err := c.send(ctx, fmt.Sprintf("peekAbsolute 0x%X %d", addr, n), true, commandTimeout)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed peek reply: %v", ErrConnection, err)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: peek returned %d bytes, want %d", ErrConnection, len(data), n)
	}
	return data, nil
}

func (c *SysBot) WriteBytes(ctx context.Context, addr uint64, data []byte) error {
	_, err := c.send(ctx, fmt.Sprintf("pokeAbsolute 0x%X 0x%s", addr, strings.ToUpper(hex.EncodeToString(data))), false, commandTimeout)
	return err
}

func (c *SysBot) ResolvePointerChain(ctx context.Context, chain []int64) (uint64, error) {
	var b strings.Builder
	b.WriteString("pointerAll")
	for _, jump := range chain {
		if jump < 0 {
			fmt.Fprintf(&b, " -0x%X", -jump)
			continue
		}
		fmt.Fprintf(&b, " 0x%X", jump)
	}

	line, err := c.send(ctx, b.String(), true, commandTimeout)
	if err != nil {
		return 0, err
	}
	addr, err := strconv.ParseUint(line, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed pointer reply %q", ErrConnection, line)
	}
	return addr, nil
}

func (c *SysBot) Press(ctx context.Context, btn Button, after time.Duration) error {
	if _, err := c.send(ctx, "click "+btn.String(), false, commandTimeout); err != nil {
		return err
	}
	return wait(ctx, after)
}

func (c *SysBot) Hold(ctx context.Context, btn Button, hold, after time.Duration) error {
	if _, err := c.send(ctx, "press "+btn.String(), false, commandTimeout); err != nil {
		return err
	}
	if err := wait(ctx, hold); err != nil {
		// A held button stays down on the console until released.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, rerr := c.send(releaseCtx, "release "+btn.String(), false, releaseTimeout); rerr != nil {
			c.logger.Warn().Err(rerr).Str("button", btn.String()).Msg("failed to release button")
		}
		return err
	}
	if _, err := c.send(ctx, "release "+btn.String(), false, commandTimeout); err != nil {
		return err
	}
	return wait(ctx, after)
}

func (c *SysBot) SetStick(ctx context.Context, s Stick, x, y int16, duration time.Duration) error {
	if _, err := c.send(ctx, fmt.Sprintf("setStick %s %d %d", s, x, y), false, commandTimeout); err != nil {
		return err
	}
	return wait(ctx, duration)
}

func (c *SysBot) Screenshot(ctx context.Context) ([]byte, error) {
	line, err := c.send(ctx, "pixelPeek", true, screenshotTimeout)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(line)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

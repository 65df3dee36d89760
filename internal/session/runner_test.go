package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"raidbot/internal/banmatch"
	"raidbot/internal/config"
	"raidbot/internal/constants"
	"raidbot/internal/remote"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDialer fails the first failures[addr] dials of each target.
type countingDialer struct {
	mu       sync.Mutex
	failures map[string]int
	dials    map[string]int
}

func (d *countingDialer) dial(ctx context.Context, addr string, logger zerolog.Logger) (remote.Interface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[addr]++
	if d.dials[addr] <= d.failures[addr] {
		return nil, errors.New("connection refused")
	}
	return newFakeRemote(), nil
}

func (d *countingDialer) count(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[addr]
}

func newTestRunner(t *testing.T, targets ...string) (*Runner, *fakeClock) {
	t.Helper()
	weights, err := banmatch.LoadLanguages("")
	require.NoError(t, err)

	cfg := &config.Config{Targets: targets, Settings: testSettings()}
	cfg.Settings.Layout.Overworld = []int64{0, 0}

	r := NewRunner(cfg, banmatch.NewCache(stubFetcher{}, weights, zerolog.Nop()), nil, nil, &recordingSink{}, zerolog.Nop())
	clock := newFakeClock()
	r.clock = clock
	return r, clock
}

func TestRunnerIsolatesSessions(t *testing.T) {
	r, clock := newTestRunner(t, "10.0.0.1:6000", "10.0.0.2:6000")
	d := &countingDialer{failures: map[string]int{"10.0.0.1:6000": 100}, dials: map[string]int{}}
	r.dial = d.dial
	start := clock.Now()

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, d.count("10.0.0.1:6000"))
	assert.Equal(t, 1, d.count("10.0.0.2:6000"))
	assert.Equal(t, 2*constants.ReconnectDelay, clock.Now().Sub(start))

	statuses := r.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "10.0.0.2:6000", statuses[0].Session)
	assert.Equal(t, "stopped", statuses[0].Phase.String())
}

func TestRunnerRetriesInitialDial(t *testing.T) {
	r, _ := newTestRunner(t, "10.0.0.1:6000")
	r.cfg.Settings.Timings.ExtraReconnectDelay = time.Second
	d := &countingDialer{failures: map[string]int{"10.0.0.1:6000": 2}, dials: map[string]int{}}
	r.dial = d.dial

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPointer)
	assert.NotErrorIs(t, err, ErrConnectivityExhausted)
	assert.Equal(t, 3, d.count("10.0.0.1:6000"))
	assert.Len(t, r.Statuses(), 1)
}

func TestRunnerDialExhaustion(t *testing.T) {
	r, _ := newTestRunner(t, "10.0.0.1:6000")
	d := &countingDialer{failures: map[string]int{"10.0.0.1:6000": 100}, dials: map[string]int{}}
	r.dial = d.dial

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrConnectivityExhausted)
	assert.Empty(t, r.Statuses())
}

func TestRunnerCanceledWhileDialing(t *testing.T) {
	r, _ := newTestRunner(t, "10.0.0.1:6000")
	d := &countingDialer{failures: map[string]int{"10.0.0.1:6000": 100}, dials: map[string]int{}}
	r.dial = d.dial
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, r.Run(ctx))
	assert.Equal(t, 1, d.count("10.0.0.1:6000"))
}

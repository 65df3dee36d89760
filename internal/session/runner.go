package session

import (
	"context"
	"fmt"
	"sync"

	"raidbot/internal/banmatch"
	"raidbot/internal/config"
	"raidbot/internal/constants"
	"raidbot/internal/notify"
	"raidbot/internal/remote"
	"raidbot/internal/repository"
	"raidbot/internal/service"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dialer opens a remote connection to one target.
type Dialer func(ctx context.Context, addr string, logger zerolog.Logger) (remote.Interface, error)

func DialSysBot(ctx context.Context, addr string, logger zerolog.Logger) (remote.Interface, error) {
	c, err := remote.Dial(ctx, addr, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Runner runs one Machine per configured target. A session that stops does
// not stop the others.
type Runner struct {
	cfg     *config.Config
	cache   *banmatch.Cache
	bans    *repository.BanRepository
	history *repository.EncounterRepository
	sink    notify.Sink
	dial    Dialer
	clock   Clock
	base    zerolog.Logger
	logger  zerolog.Logger

	mu       sync.RWMutex
	machines []*Machine
}

func NewRunner(
	cfg *config.Config,
	cache *banmatch.Cache,
	bans *repository.BanRepository,
	history *repository.EncounterRepository,
	sink notify.Sink,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		cfg:     cfg,
		cache:   cache,
		bans:    bans,
		history: history,
		sink:    sink,
		dial:    DialSysBot,
		clock:   realClock{},
		base:    logger,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run blocks until every session has stopped and returns the first fatal
// session error.
func (r *Runner) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, target := range r.cfg.Targets {
		g.Go(func() error {
			err := r.runTarget(ctx, target)
			if err != nil {
				r.logger.Error().Err(err).Str("target", target).Msg("session ended with error")
			}
			return err
		})
	}
	return g.Wait()
}

func (r *Runner) runTarget(ctx context.Context, target string) error {
	conn, err := r.connect(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer conn.Close()

	settings := r.cfg.Settings
	gate := service.NewGate(r.cache, r.bans, r.sink, service.GateOptions{
		Session:     target,
		CatchLimit:  settings.CatchLimit,
		RemoteCheck: settings.BanListRefresh.Enabled(),
	}, r.base.With().Str("session", target).Logger())

	m, err := New(Options{
		Name:     target,
		Settings: settings,
		Remote:   conn,
		Gate:     gate,
		History:  r.history,
		Sink:     r.sink,
		Logger:   r.base,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.machines = append(r.machines, m)
	r.mu.Unlock()

	return m.Run(ctx)
}

// connect dials target with the same bounded policy the session applies to
// a lost connection.
func (r *Runner) connect(ctx context.Context, target string) (remote.Interface, error) {
	timings := r.cfg.Settings.Timings
	attempts := max(timings.ReconnectAttempts, 1)
	delay := constants.ReconnectDelay + timings.ExtraReconnectDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn remote.Interface
		if conn, err = r.dial(ctx, target, r.base); err == nil {
			return conn, nil
		}
		r.logger.Warn().Err(err).Str("target", target).Int("attempt", attempt).Int("of", attempts).Msg("failed to connect to target")

		if attempt < attempts {
			if serr := r.clock.Sleep(ctx, delay); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("%w: connecting to %s: %v", ErrConnectivityExhausted, target, err)
}

func (r *Runner) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.machines))
	for _, m := range r.machines {
		out = append(out, m.Status())
	}
	return out
}

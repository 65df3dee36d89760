// Package session drives one target console through repeated hosting cycles:
// prepare the encounter, fill the lobby through the participant gate, run the
// encounter, settle the results and reset the game for the next cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/domain"
	"raidbot/internal/notify"
	"raidbot/internal/remote"
	"raidbot/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayloadBuilder turns a rotation entry's payload text into the bytes
// written at the box start before the lobby opens.
type PayloadBuilder interface {
	Build(ctx context.Context, entry domain.RotationEntry) ([]byte, error)
}

type HistoryStore interface {
	Insert(ctx context.Context, record domain.EncounterRecord) error
}

type Options struct {
	Name     string
	Settings *config.Settings
	Remote   remote.Interface
	Gate     *service.Gate
	History  HistoryStore
	Sink     notify.Sink
	Payload  PayloadBuilder // optional
	Clock    Clock          // optional
	Logger   zerolog.Logger
}

// Status is a point in time view of a session.
type Status struct {
	Session    string
	RunID      string
	Phase      domain.Phase
	Rotation   int
	Label      string
	Encounters int
	Wins       int
	Losses     int
	StartedAt  time.Time
	LastError  string
}

type Machine struct {
	name     string
	runID    string
	settings *config.Settings
	remote   remote.Interface
	gate     *service.Gate
	history  HistoryStore
	sink     notify.Sink
	payload  PayloadBuilder
	clock    Clock
	logger   zerolog.Logger
	offsets  *OffsetCache

	todaySeed         uint64
	seedCaptured      bool
	correctionApplied bool
	desyncRestarted   bool
	seedIndex         int
	joinCode          string

	mu     sync.RWMutex
	status Status
}

func New(opts Options) (*Machine, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("%w: settings are required", config.ErrInvalidSettings)
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Remote == nil || opts.Gate == nil || opts.Sink == nil || opts.History == nil {
		return nil, errors.New("session: remote, gate, sink and history are required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	runID := uuid.NewString()
	logger := opts.Logger.With().Str("session", opts.Name).Str("run_id", runID).Logger()
	return &Machine{
		name:     opts.Name,
		runID:    runID,
		settings: opts.Settings,
		remote:   opts.Remote,
		gate:     opts.Gate,
		history:  opts.History,
		sink:     opts.Sink,
		payload:  opts.Payload,
		clock:    clock,
		logger:   logger,
		offsets:  NewOffsetCache(opts.Remote, opts.Settings.Layout, logger),
		status: Status{
			Session: opts.Name,
			RunID:   runID,
			Phase:   domain.PhaseInit,
			Label:   opts.Settings.Rotation[0].Label,
		},
	}, nil
}

func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Machine) Name() string {
	return m.name
}

// Run loops until ctx is canceled or a fatal error stops the session.
// Cancellation returns nil.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	m.status.StartedAt = m.clock.Now()
	m.mu.Unlock()
	defer m.setPhase(domain.PhaseStopped)

	m.logger.Info().Int("rotation_slots", len(m.settings.Rotation)).Msg("starting session loop")
	for {
		if ctx.Err() != nil {
			m.logger.Info().Msg("session canceled")
			return nil
		}

		err := m.cycle(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			m.logger.Info().Msg("session canceled")
			return nil
		}
		if err = m.handle(ctx, err); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.setError(err)
			m.logger.Error().Err(err).Str("phase", m.Status().Phase.String()).Msg("session stopped")
			return err
		}
	}
}

// handle applies the recovery each error class calls for. It returns nil when
// the loop may continue.
func (m *Machine) handle(ctx context.Context, err error) error {
	for err != nil {
		m.setError(err)
		switch {
		case errors.Is(err, remote.ErrConnection):
			m.logger.Warn().Err(err).Msg("lost connection to target")
			m.setPhase(domain.PhaseRecover)
			err = m.reconnect(ctx)
		case errors.Is(err, ErrDesync):
			if m.desyncRestarted {
				return fmt.Errorf("desync recurred right after a restart: %w", err)
			}
			m.logger.Warn().Err(err).Msg("game state desynchronized, restarting the game")
			m.desyncRestarted = true
			m.setPhase(domain.PhaseRecover)
			err = m.restartGame(ctx)
		case errors.Is(err, ErrPrepareFailed):
			m.logger.Warn().Err(err).Msg("failed to prepare the encounter, rebooting the game")
			m.setPhase(domain.PhaseRecover)
			err = m.restartGame(ctx)
		default:
			return err
		}
	}
	return nil
}

// cycle runs one pass from CacheOffsets to RotateOrReset.
func (m *Machine) cycle(ctx context.Context) error {
	m.setPhase(domain.PhaseCacheOffsets)
	offs, err := m.offsets.Resolve(ctx)
	if err != nil {
		return err
	}

	m.setPhase(domain.PhaseVerifySeed)
	restarted, err := m.verifySeed(ctx, offs)
	if err != nil || restarted {
		return err
	}

	before, err := m.countActive(ctx, offs)
	if err != nil {
		return err
	}
	if err := m.remote.WriteBytes(ctx, offs.NIDs[0], make([]byte, 32)); err != nil {
		return err
	}

	m.setPhase(domain.PhasePrepareEncounter)
	if err := m.prepare(ctx, offs); err != nil {
		return err
	}

	m.setPhase(domain.PhaseAwaitLobby)
	if err := m.awaitLobby(ctx, offs); err != nil {
		return err
	}
	m.desyncRestarted = false

	m.setPhase(domain.PhaseCollectParticipants)
	lobby, err := m.collectParticipants(ctx, offs)
	if err != nil {
		return err
	}
	if !lobby.Ready() {
		return m.noLobby(ctx, offs, lobby)
	}

	m.setPhase(domain.PhaseRunEncounter)
	final, err := m.runEncounter(ctx, offs, lobby.Participants)
	if err != nil {
		return err
	}
	after, err := m.countActive(ctx, offs)
	if err != nil {
		return err
	}

	m.setPhase(domain.PhaseSettleResults)
	m.settle(ctx, final, before, after)

	m.setPhase(domain.PhaseRotateOrReset)
	return m.restartGame(ctx)
}

func (m *Machine) setPhase(p domain.Phase) {
	m.mu.Lock()
	m.status.Phase = p
	m.mu.Unlock()
	m.logger.Debug().Str("phase", p.String()).Msg("phase")
}

func (m *Machine) setError(err error) {
	m.mu.Lock()
	m.status.LastError = err.Error()
	m.mu.Unlock()
}

func (m *Machine) rotation() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Rotation
}

func (m *Machine) entry() domain.RotationEntry {
	return m.settings.Rotation[m.rotation()]
}

func (m *Machine) multiSlot() bool {
	return len(m.settings.Rotation) > 1
}

func (m *Machine) counters() (encounters, wins, losses int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Encounters, m.status.Wins, m.status.Losses
}

// advanceRotation moves to the next rotation slot, wrapping at the end.
func (m *Machine) advanceRotation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Rotation = (m.status.Rotation + 1) % len(m.settings.Rotation)
	m.status.Label = m.settings.Rotation[m.status.Rotation].Label
	return m.status.Rotation
}

func (m *Machine) publish(ctx context.Context, event domain.Event) {
	event.Session = m.name
	if event.At.IsZero() {
		event.At = m.clock.Now()
	}
	if event.Footer == "" {
		event.Footer = m.footer()
	}
	if err := m.sink.Publish(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to publish event")
	}
}

func (m *Machine) footer() string {
	encounters, wins, losses := m.counters()
	uptime := m.clock.Now().Sub(m.Status().StartedAt).Truncate(time.Second)
	return fmt.Sprintf("Completed: %d | Wins: %d | Losses: %d | Uptime: %s", encounters, wins, losses, uptime)
}

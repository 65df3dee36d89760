package session

import (
	"context"
	"fmt"
	"time"

	"raidbot/internal/constants"
	"raidbot/internal/remote"
)

// prepare gets from the overworld into a hosted lobby menu.
func (m *Machine) prepare(ctx context.Context, offs Offsets) error {
	m.logger.Info().Msg("preparing lobby")
	entry := m.entry()

	if len(entry.Payload) > 0 {
		if err := m.injectPayload(ctx); err != nil {
			return err
		}
	}

	for {
		ok, err := m.connectedOnline(ctx, offs)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		m.logger.Info().Msg("connecting")
		if err := m.recoverToOverworld(ctx, offs); err != nil {
			return err
		}
		if err := m.connectOnline(ctx, offs); err != nil {
			return err
		}
	}

	if err := m.play(ctx, repeat(5, press(remote.B, 500*time.Millisecond))); err != nil {
		return err
	}
	if err := m.clock.Sleep(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	ok, err := m.onOverworld(ctx, offs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: left the overworld before opening the lobby", ErrPrepareFailed)
	}

	steps := []step{
		press(remote.A, 3*time.Second),
		press(remote.A, 3*time.Second),
	}
	if !entry.Coded {
		steps = append(steps, press(remote.DDown, time.Second))
	}
	steps = append(steps, press(remote.A, 8*time.Second))
	return m.play(ctx, steps)
}

// injectPayload writes the built payload at the box start and loads it into
// the party through the menus.
func (m *Machine) injectPayload(ctx context.Context) error {
	entry := m.entry()
	if m.payload == nil {
		m.logger.Warn().Str("label", entry.Label).Msg("rotation entry has a payload but no payload builder is configured")
		return nil
	}

	data, err := m.payload.Build(ctx, entry)
	if err != nil {
		return fmt.Errorf("%w: building payload: %v", ErrPrepareFailed, err)
	}
	if err := m.pokeChain(ctx, "box_start", m.settings.Layout.BoxStart, data); err != nil {
		return err
	}

	m.logger.Info().Msg("scrolling through menus")
	return m.play(ctx, []step{
		press(remote.X, 2*time.Second),
		press(remote.DRight, 500*time.Millisecond),
		stick(remote.LeftStick, 0, -32000, time.Second),
		stick(remote.LeftStick, 0, 0, 0),
		press(remote.DDown, 500*time.Millisecond),
		press(remote.DDown, 500*time.Millisecond),
		press(remote.A, 3500*time.Millisecond),
		press(remote.Y, 500*time.Millisecond),
		press(remote.DLeft, 800*time.Millisecond),
		press(remote.Y, 500*time.Millisecond),
		press(remote.B, 1500*time.Millisecond),
		press(remote.B, 1500*time.Millisecond),
	})
}

func (m *Machine) connectOnline(ctx context.Context, offs Offsets) error {
	ok, err := m.connectedOnline(ctx, offs)
	if err != nil || ok {
		return err
	}

	extra := m.settings.Timings.ExtraTimeConnectOnline
	open := []step{
		press(remote.X, 3*time.Second),
		press(remote.L, 5*time.Second+extra),
	}
	if err := m.play(ctx, open); err != nil {
		return err
	}

	if ok, err = m.connectedOnline(ctx, offs); err != nil {
		return err
	}
	if !ok {
		m.logger.Info().Msg("failed to connect the first time, trying again")
		if err := m.recoverToOverworld(ctx, offs); err != nil {
			return err
		}
		if err := m.play(ctx, open); err != nil {
			return err
		}
	}

	for polls := 0; ; polls++ {
		ok, err := m.connectedOnline(ctx, offs)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if polls >= constants.OnlinePollLimit {
			return fmt.Errorf("%w: not online after %d polls", ErrPrepareFailed, polls)
		}
		if err := m.clock.Sleep(ctx, constants.OnlinePollInterval); err != nil {
			return err
		}
	}

	if err := m.clock.Sleep(ctx, 3*time.Second+extra); err != nil {
		return err
	}
	return m.remote.Press(ctx, remote.A, time.Second)
}

func (m *Machine) recoverToOverworld(ctx context.Context, offs Offsets) error {
	ok, err := m.onOverworld(ctx, offs)
	if err != nil || ok {
		return err
	}

	m.logger.Info().Msg("attempting to recover to overworld")
	attempts := []step{
		press(remote.B, 1300*time.Millisecond),
		press(remote.B, 2*time.Second),
		press(remote.A, 1300*time.Millisecond),
	}
	for range constants.OverworldRecoverLimit {
		for _, s := range attempts {
			if err := s(ctx, m.remote); err != nil {
				return err
			}
			if ok, err = m.onOverworld(ctx, offs); err != nil || ok {
				return err
			}
		}
	}
	return fmt.Errorf("%w: failed to recover to overworld", ErrPrepareFailed)
}

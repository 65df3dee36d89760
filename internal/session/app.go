package session

import (
	"context"
	"fmt"
	"time"

	"raidbot/internal/constants"
	"raidbot/internal/remote"
)

// step is one scripted input.
type step func(ctx context.Context, r remote.Interface) error

func press(b remote.Button, after time.Duration) step {
	return func(ctx context.Context, r remote.Interface) error {
		return r.Press(ctx, b, after)
	}
}

func hold(b remote.Button, d, after time.Duration) step {
	return func(ctx context.Context, r remote.Interface) error {
		return r.Hold(ctx, b, d, after)
	}
}

func stick(s remote.Stick, x, y int16, d time.Duration) step {
	return func(ctx context.Context, r remote.Interface) error {
		return r.SetStick(ctx, s, x, y, d)
	}
}

func repeat(n int, s step) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func (m *Machine) play(ctx context.Context, steps []step) error {
	for _, s := range steps {
		if err := s(ctx, m.remote); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) closeGame(ctx context.Context) error {
	m.logger.Info().Msg("closing the game")
	return m.play(ctx, []step{
		press(remote.B, 500*time.Millisecond),
		press(remote.Home, 2*time.Second),
		press(remote.X, time.Second),
		press(remote.A, 5*time.Second),
	})
}

// startGame launches the game from the home menu, injects the rotation seed
// while it loads, and waits until the overworld is reachable.
func (m *Machine) startGame(ctx context.Context) error {
	t := m.settings.Timings
	steps := []step{press(remote.A, time.Second+t.ExtraTimeLoadProfile)}
	if t.AvoidSystemUpdate {
		steps = append(steps,
			press(remote.DUp, 600*time.Millisecond),
			press(remote.A, time.Second+t.ExtraTimeLoadProfile),
		)
	}
	steps = append(steps,
		press(remote.A, time.Second+t.ExtraTimeCheckDLC),
		press(remote.DUp, 600*time.Millisecond),
		press(remote.A, 600*time.Millisecond),
	)
	if err := m.play(ctx, steps); err != nil {
		return err
	}

	m.logger.Info().Msg("restarting the game")
	if err := m.clock.Sleep(ctx, 16*time.Second+t.ExtraTimeLoadGame); err != nil {
		return err
	}

	entry := m.entry()
	if m.multiSlot() && entry.Seed != 0 {
		if err := m.injectSeed(ctx); err != nil {
			return err
		}
	}
	if err := m.clock.Sleep(ctx, time.Second); err != nil {
		return err
	}
	if err := m.play(ctx, repeat(8, press(remote.A, time.Second))); err != nil {
		return err
	}

	if err := m.awaitTitle(ctx); err != nil {
		return err
	}
	if err := m.clock.Sleep(ctx, 5*time.Second+t.ExtraTimeLoadOverworld); err != nil {
		return err
	}
	m.logger.Info().Msg("back in the overworld")
	return nil
}

// awaitTitle polls for the overworld. After StartGameTitleTimeout it presses
// A every few seconds to get past a stuck prompt, unless system updates must
// be avoided.
func (m *Machine) awaitTitle(ctx context.Context) error {
	deadline := m.clock.Now().Add(constants.StartGameTitleTimeout)
	for {
		ok, err := m.onOverworldTitle(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !m.clock.Now().Before(deadline) {
			break
		}
		if err := m.clock.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}

	if m.settings.Timings.AvoidSystemUpdate {
		return fmt.Errorf("%w: game did not reach the overworld after %s", ErrDesync, constants.StartGameTitleTimeout)
	}
	m.logger.Warn().Msg("still not in the game, initiating rescue")
	for range constants.StartGameRescuePresses {
		if err := m.remote.Press(ctx, remote.A, 6*time.Second); err != nil {
			return err
		}
		ok, err := m.onOverworldTitle(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: rescue presses did not reach the overworld", ErrDesync)
}

// restartGame closes and starts the game and drops the cached offsets.
func (m *Machine) restartGame(ctx context.Context) error {
	m.offsets.Invalidate()
	if err := m.closeGame(ctx); err != nil {
		return err
	}
	if err := m.startGame(ctx); err != nil {
		return err
	}
	return m.keepDaySeed(ctx)
}

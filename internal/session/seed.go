package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/constants"
	"raidbot/internal/remote"
)

// verifySeed compares the day seed against the one captured in the first
// cycle. The first mismatch runs the rollover correction and reports a
// restart; a second one without a settled cycle in between is fatal.
func (m *Machine) verifySeed(ctx context.Context, offs Offsets) (bool, error) {
	current, err := m.readU64(ctx, offs.RaidBlock)
	if err != nil {
		return false, err
	}
	if !m.seedCaptured {
		m.todaySeed = current
		m.seedCaptured = true
		m.logger.Info().Str("seed", fmt.Sprintf("%016X", current)).Msg("captured day seed")
		return false, nil
	}
	if current == m.todaySeed {
		return false, nil
	}

	log := m.logger.Warn().
		Str("current", fmt.Sprintf("%016X", current)).
		Str("expected", fmt.Sprintf("%016X", m.todaySeed))
	if m.correctionApplied {
		log.Msg("day seed changed again after rollover correction, stopping session")
		return false, fmt.Errorf("%w: %016X != %016X", ErrSeedDrift, current, m.todaySeed)
	}
	log.Msg("day seed changed, applying rollover correction")

	if err := m.closeGame(ctx); err != nil {
		return false, err
	}
	if err := m.rolloverCorrection(ctx); err != nil {
		return false, err
	}
	if err := m.startGame(ctx); err != nil {
		return false, err
	}
	m.correctionApplied = true
	m.offsets.Invalidate()
	return true, nil
}

func dateScrolls(f config.DateFormat) int {
	switch f {
	case config.DDMMYY:
		return 0
	case config.YYMMDD:
		return 2
	default:
		return 1
	}
}

// rolloverCorrection walks the system settings from the home menu and moves
// the console date back one day.
func (m *Machine) rolloverCorrection(ctx context.Context) error {
	steps := []step{
		press(remote.B, 150*time.Millisecond),
		press(remote.B, 150*time.Millisecond),
		press(remote.DRight, 150*time.Millisecond),
		press(remote.DRight, 150*time.Millisecond),
		press(remote.DDown, 150*time.Millisecond),
		press(remote.DRight, 150*time.Millisecond),
		// settings
		press(remote.A, 1250*time.Millisecond),
		// system
		hold(remote.DDown, 2*time.Second, 250*time.Millisecond),
		press(remote.A, 1250*time.Millisecond),
		hold(remote.DDown, m.settings.RolloverHold, time.Second),
		press(remote.DUp, 500*time.Millisecond),
		press(remote.A, 1250*time.Millisecond),
		press(remote.DDown, 150*time.Millisecond),
		press(remote.DDown, 150*time.Millisecond),
		press(remote.A, 500*time.Millisecond),
	}
	for range dateScrolls(m.settings.DateFormat) {
		steps = append(steps, press(remote.DRight, 200*time.Millisecond))
	}
	steps = append(steps, press(remote.DDown, 200*time.Millisecond))
	for range 8 {
		steps = append(steps, press(remote.DRight, 200*time.Millisecond))
	}
	steps = append(steps,
		press(remote.A, 200*time.Millisecond),
		press(remote.Home, time.Second),
	)
	return m.play(ctx, steps)
}

// keepDaySeed writes the captured day seed over the copy the game uses to
// roll the day.
func (m *Machine) keepDaySeed(ctx context.Context) error {
	if !m.settings.KeepDaySeed || !m.seedCaptured {
		return nil
	}
	data := binary.LittleEndian.AppendUint64(nil, m.todaySeed)
	chain := shiftLast(m.settings.Layout.RaidBlock, constants.DaySeedCopyOffset)
	return m.pokeChain(ctx, "day_seed", chain, data)
}

// countActive returns the number of non-empty seed slots in the raid block
// and records the last empty slot as the next replacement index.
func (m *Machine) countActive(ctx context.Context, offs Offsets) (int, error) {
	data, err := m.remote.ReadBytes(ctx, offs.RaidBlock, constants.RaidBlockReadSize)
	if err != nil {
		return 0, err
	}
	active := 0
	for i := range constants.RaidSeedSlots {
		start := constants.RaidSlotSize + i*constants.RaidSlotSize
		if binary.LittleEndian.Uint32(data[start:start+4]) != 0 {
			active++
			continue
		}
		m.seedIndex = i
	}
	m.logger.Info().Int("active", active).Int("replace_index", m.seedIndex).Msg("counted active encounters")

	if encounters, _, _ := m.counters(); encounters == 0 {
		if err := m.keepDaySeed(ctx); err != nil {
			return 0, err
		}
	}
	return active, nil
}

package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"raidbot/internal/constants"
)

// injectSeed writes the current rotation entry's seed and content type into
// the replacement slot of the raid block. Values already in place are left
// untouched.
func (m *Machine) injectSeed(ctx context.Context) error {
	entry := m.entry()
	slot := replaceLast(m.settings.Layout.RaidBlock, int64(constants.SeedSlotBase+(m.seedIndex+1)*constants.RaidSlotSize))

	want := binary.LittleEndian.AppendUint32(nil, entry.Seed)
	current, err := m.peekChain(ctx, "seed_slot", slot, len(want))
	if err != nil {
		return err
	}
	if !bytes.Equal(current, want) {
		m.logger.Info().
			Int("index", m.seedIndex).
			Str("from", fmt.Sprintf("%X", current)).
			Str("to", fmt.Sprintf("%X", want)).
			Msg("replacing seed")
		if err := m.pokeChain(ctx, "seed_slot", slot, want); err != nil {
			return err
		}
	}

	typeSlot := shiftLast(slot, constants.ContentTypeOffset)
	wantType := []byte{entry.ContentType}
	currentType, err := m.peekChain(ctx, "content_type", typeSlot, 1)
	if err != nil {
		return err
	}
	if !bytes.Equal(currentType, wantType) {
		m.logger.Info().
			Uint8("from", currentType[0]).
			Uint8("to", entry.ContentType).
			Msg("replacing content type")
		if err := m.pokeChain(ctx, "content_type", typeSlot, wantType); err != nil {
			return err
		}
	}
	m.logger.Info().Str("label", entry.Label).Msg("seed override completed")
	return nil
}

package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"raidbot/internal/constants"
	"raidbot/internal/domain"

	"golang.org/x/text/encoding/unicode"
)

const (
	partnerNameOffset = 0x08
	partnerNameSize   = 0x1A
)

func (m *Machine) readU8(ctx context.Context, addr uint64) (uint8, error) {
	data, err := m.remote.ReadBytes(ctx, addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *Machine) readU64(ctx context.Context, addr uint64) (uint64, error) {
	data, err := m.remote.ReadBytes(ctx, addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (m *Machine) peekChain(ctx context.Context, name string, chain []int64, n int) ([]byte, error) {
	addr, err := resolve(ctx, m.remote, name, chain)
	if err != nil {
		return nil, err
	}
	return m.remote.ReadBytes(ctx, addr, n)
}

func (m *Machine) pokeChain(ctx context.Context, name string, chain []int64, data []byte) error {
	addr, err := resolve(ctx, m.remote, name, chain)
	if err != nil {
		return err
	}
	return m.remote.WriteBytes(ctx, addr, data)
}

func (m *Machine) onOverworld(ctx context.Context, offs Offsets) (bool, error) {
	b, err := m.readU8(ctx, offs.Overworld)
	return b == 0x11, err
}

// onOverworldTitle re-resolves the overworld chain, which is invalid while
// the game is still loading.
func (m *Machine) onOverworldTitle(ctx context.Context) (bool, error) {
	addr, err := m.remote.ResolvePointerChain(ctx, m.settings.Layout.Overworld)
	if err != nil || addr == 0 {
		return false, err
	}
	b, err := m.readU8(ctx, addr)
	return b == 0x11, err
}

func (m *Machine) connectedOnline(ctx context.Context, offs Offsets) (bool, error) {
	b, err := m.readU8(ctx, offs.Connected)
	return b == 1, err
}

// lobbyConnected is false while in the lobby menu but not yet hosting.
func (m *Machine) lobbyConnected(ctx context.Context, offs Offsets) (bool, error) {
	b, err := m.readU8(ctx, offs.Lobby)
	return b != 0, err
}

func (m *Machine) inEncounter(ctx context.Context, offs Offsets) (bool, error) {
	b, err := m.readU8(ctx, offs.InEncounter)
	return b == 2, err
}

func statusChain(base []int64, slot int) []int64 {
	return shiftLast(base, int64(slot*constants.PartnerStatusSize))
}

// readPartner reads the identity in guest slot i (0-based). A zero NID or
// an empty name means the slot is not loaded yet.
func (m *Machine) readPartner(ctx context.Context, offs Offsets, i int) (domain.Participant, error) {
	p := domain.Participant{Slot: i + constants.FirstGuestSlot}

	nid, err := m.readU64(ctx, offs.NIDs[i])
	if err != nil {
		return p, err
	}
	p.NID = nid

	data, err := m.peekChain(ctx, fmt.Sprintf("partner_status[%d]", i), statusChain(m.settings.Layout.PartnerStatus, i), partnerNameOffset+partnerNameSize)
	if err != nil {
		return p, err
	}
	p.TID = binary.LittleEndian.Uint32(data[0:4])
	p.Name = decodeName(data[partnerNameOffset:])
	return p, nil
}

// decodeName decodes a NUL terminated UTF-16LE string.
func decodeName(raw []byte) string {
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			raw = raw[:i]
			break
		}
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes.TrimRight(decoded, "\x00")))
}

package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"raidbot/internal/config"
	"raidbot/internal/constants"
	"raidbot/internal/remote"

	"github.com/rs/zerolog"
)

// Offsets are the absolute addresses a session reads every cycle.
type Offsets struct {
	Overworld   uint64
	Connected   uint64
	RaidBlock   uint64
	Lobby       uint64
	InEncounter uint64
	NIDs        [constants.MaxParticipants]uint64
}

// OffsetCache resolves the layout's pointer chains once and keeps the result
// until the application is restarted.
type OffsetCache struct {
	remote remote.Interface
	layout config.Layout
	logger zerolog.Logger

	mu     sync.Mutex
	cached *Offsets
}

func NewOffsetCache(r remote.Interface, layout config.Layout, logger zerolog.Logger) *OffsetCache {
	return &OffsetCache{remote: r, layout: layout, logger: logger}
}

func (c *OffsetCache) Resolve(ctx context.Context) (Offsets, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return *c.cached, nil
	}

	c.logger.Info().Msg("caching session offsets")
	var (
		offs Offsets
		err  error
	)
	targets := []struct {
		name  string
		chain []int64
		dst   *uint64
	}{
		{"overworld", c.layout.Overworld, &offs.Overworld},
		{"connected", c.layout.Connected, &offs.Connected},
		{"raid_block", c.layout.RaidBlock, &offs.RaidBlock},
		{"lobby", c.layout.Lobby, &offs.Lobby},
		{"in_encounter", c.layout.InEncounter, &offs.InEncounter},
	}
	for _, t := range targets {
		if *t.dst, err = resolve(ctx, c.remote, t.name, t.chain); err != nil {
			return Offsets{}, err
		}
	}
	for p := range offs.NIDs {
		chain := shiftLast(c.layout.PartnerNID, int64(p*constants.PartnerNIDStride))
		if offs.NIDs[p], err = resolve(ctx, c.remote, fmt.Sprintf("partner_nid[%d]", p), chain); err != nil {
			return Offsets{}, err
		}
	}

	c.cached = &offs
	c.logger.Info().
		Str("overworld", hexAddr(offs.Overworld)).
		Str("raid_block", hexAddr(offs.RaidBlock)).
		Str("partner_nid", hexAddr(offs.NIDs[0])).
		Msg("caching offsets complete")
	return offs, nil
}

func (c *OffsetCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func resolve(ctx context.Context, r remote.Interface, name string, chain []int64) (uint64, error) {
	addr, err := r.ResolvePointerChain(ctx, chain)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", name, err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: %s %v", ErrInvalidPointer, name, chain)
	}
	return addr, nil
}

// shiftLast returns a copy of chain with delta added to its final jump.
func shiftLast(chain []int64, delta int64) []int64 {
	out := slices.Clone(chain)
	if len(out) > 0 {
		out[len(out)-1] += delta
	}
	return out
}

// replaceLast returns a copy of chain whose final jump is jump.
func replaceLast(chain []int64, jump int64) []int64 {
	out := slices.Clone(chain)
	if len(out) > 0 {
		out[len(out)-1] = jump
	}
	return out
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("0x%X", addr)
}

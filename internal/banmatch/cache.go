package banmatch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"raidbot/internal/constants"
	"raidbot/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type ListFetcher interface {
	Fetch(ctx context.Context) ([]domain.BanEntry, error)
}

// Cache owns the process wide ban list and language table. Readers always see
// a complete snapshot; a refresh swaps the list only after a successful fetch.
type Cache struct {
	fetcher ListFetcher
	logger  zerolog.Logger

	entries atomic.Pointer[[]domain.BanEntry]
	weights atomic.Pointer[map[string]string]
	group   singleflight.Group
}

func NewCache(fetcher ListFetcher, weights map[string]string, logger zerolog.Logger) *Cache {
	c := &Cache{fetcher: fetcher, logger: logger}
	empty := []domain.BanEntry{}
	c.entries.Store(&empty)
	c.SetWeights(weights)
	return c
}

func (c *Cache) Entries() []domain.BanEntry {
	return *c.entries.Load()
}

func (c *Cache) Weights() map[string]string {
	return *c.weights.Load()
}

func (c *Cache) SetWeights(weights map[string]string) {
	w := maps.Clone(weights)
	if w == nil {
		w = map[string]string{}
	}
	c.weights.Store(&w)
}

// Refresh refetches the remote list. Concurrent callers share one fetch. On
// failure the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("banlist", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
		defer cancel()
		entries, err := c.fetcher.Fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		list := slices.Clone(entries)
		if list == nil {
			list = []domain.BanEntry{}
		}
		c.entries.Store(&list)
		return nil, nil
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Int("cached_entries", len(c.Entries())).
			Msg("ban list refresh failed, keeping cached list")
		return fmt.Errorf("refreshing ban list: %w", err)
	}

	c.logger.Info().Int("entries", len(c.Entries())).Msg("ban list refreshed")
	return nil
}

// Match checks name against the current snapshot, refetching first when
// refresh is set. A failed refetch is not an error for the caller.
func (c *Cache) Match(ctx context.Context, name string, refresh bool) (domain.MatchResult, error) {
	if refresh {
		_ = c.Refresh(ctx)
	}

	result, err := Check(name, c.Entries(), c.Weights())
	if err != nil {
		c.logger.Error().Err(err).Str("name", name).Msg("ban list check failed")
		return domain.MatchResult{}, err
	}
	return result, nil
}

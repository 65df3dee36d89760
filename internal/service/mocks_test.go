package service

import (
	"context"
	"sync"

	"raidbot/internal/domain"

	"github.com/stretchr/testify/mock"
)

// --- BanMatcher ---

type MockBanMatcher struct {
	mock.Mock
}

func (m *MockBanMatcher) Match(ctx context.Context, name string, refresh bool) (domain.MatchResult, error) {
	args := m.Called(ctx, name, refresh)
	return args.Get(0).(domain.MatchResult), args.Error(1)
}

// --- LocalBanStore ---

type memoryBanStore struct {
	bans map[uint64]domain.LocalBan
}

func newMemoryBanStore() *memoryBanStore {
	return &memoryBanStore{bans: make(map[uint64]domain.LocalBan)}
}

func (s *memoryBanStore) FindByNID(ctx context.Context, nid uint64) (*domain.LocalBan, error) {
	ban, ok := s.bans[nid]
	if !ok {
		return nil, nil
	}
	return &ban, nil
}

func (s *memoryBanStore) Add(ctx context.Context, ban domain.LocalBan) (*domain.LocalBan, error) {
	if _, ok := s.bans[ban.NID]; !ok {
		s.bans[ban.NID] = ban
	}
	b := s.bans[ban.NID]
	return &b, nil
}

// --- Sink ---

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

package service

import (
	"context"
	"errors"
	"testing"

	"raidbot/internal/banmatch"
	"raidbot/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	ash   = domain.Participant{NID: 0xA5, Name: "Ash", Slot: 2}
	misty = domain.Participant{NID: 0xB6, Name: "Misty", Slot: 3}
)

func noMatch(name string) domain.MatchResult {
	return domain.MatchResult{Candidate: name}
}

func newTestGate(limit int) (*Gate, *MockBanMatcher, *memoryBanStore, *recordingSink) {
	matcher := new(MockBanMatcher)
	store := newMemoryBanStore()
	sink := &recordingSink{}
	gate := NewGate(matcher, store, sink, GateOptions{Session: "test", CatchLimit: limit, RemoteCheck: true}, zerolog.Nop())
	return gate, matcher, store, sink
}

func TestGateAdmitsUnknownParticipant(t *testing.T) {
	gate, matcher, _, sink := newTestGate(2)
	matcher.On("Match", mock.Anything, "Ash", true).Return(noMatch("Ash"), nil)

	v, err := gate.Check(context.Background(), ash, "Eevee", true)
	require.NoError(t, err)
	assert.False(t, v.Rejected())
	assert.True(t, gate.Tracker().Tracked(ash.NID))
	assert.Empty(t, sink.events)
	matcher.AssertExpectations(t)
}

func TestGateRejectsGlobalBan(t *testing.T) {
	gate, matcher, _, sink := newTestGate(2)
	log10p := -3.2
	matcher.On("Match", mock.Anything, "Ash", false).Return(domain.MatchResult{
		Candidate: "Ash",
		Matched:   true,
		Kind:      domain.MatchSimilar,
		Distance:  1,
		Entry:     &domain.BanEntry{Name: "Ashe", Notes: "leeching"},
		Log10p:    &log10p,
	}, nil)

	v, err := gate.Check(context.Background(), ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, GlobalBan, v.Kind)
	assert.Contains(t, v.Reason, "leeching")
	assert.Contains(t, v.Reason, "Log10p: -3.2000")
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventDisbanded, sink.events[0].Kind)
	assert.Equal(t, v.Reason, sink.events[0].Text)
}

func TestGateRejectsLocalBan(t *testing.T) {
	gate, matcher, store, _ := newTestGate(2)
	matcher.On("Match", mock.Anything, "Ash", false).Return(noMatch("Ash"), nil)
	store.bans[ash.NID] = domain.LocalBan{NID: ash.NID, Name: "Ash", Comment: "griefing"}

	v, err := gate.Check(context.Background(), ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, LocalBan, v.Kind)
	assert.Contains(t, v.Reason, "griefing")
}

func TestGateSkipsRemoteWhenDisabled(t *testing.T) {
	matcher := new(MockBanMatcher)
	gate := NewGate(matcher, newMemoryBanStore(), &recordingSink{}, GateOptions{CatchLimit: 1}, zerolog.Nop())

	v, err := gate.Check(context.Background(), ash, "Eevee", true)
	require.NoError(t, err)
	assert.False(t, v.Rejected())
	matcher.AssertNotCalled(t, "Match", mock.Anything, mock.Anything, mock.Anything)
}

func TestGateSurfacesUnknownLanguage(t *testing.T) {
	gate, matcher, _, sink := newTestGate(2)
	matcher.On("Match", mock.Anything, "Ash", false).Return(domain.MatchResult{}, banmatch.ErrUnknownLanguage)

	_, err := gate.Check(context.Background(), ash, "Eevee", false)
	assert.ErrorIs(t, err, banmatch.ErrUnknownLanguage)
	assert.Empty(t, sink.events)
}

func TestGateCatchLimitSoftBlockThenEscalation(t *testing.T) {
	const limit = 2
	gate, matcher, store, _ := newTestGate(limit)
	matcher.On("Match", mock.Anything, mock.Anything, false).Return(noMatch("Ash"), nil)
	ctx := context.Background()

	v, err := gate.Check(ctx, ash, "Eevee", false)
	require.NoError(t, err)
	require.False(t, v.Rejected())

	// two completed encounters bring the count to the limit
	gate.ApplyPenalty([]domain.Participant{ash}, "Eevee")
	gate.ApplyPenalty([]domain.Participant{ash}, "Eevee")
	assert.Equal(t, limit, gate.Tracker().Count(ash.NID))

	v, err = gate.Check(ctx, ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, SoftBlocked, v.Kind)
	assert.Empty(t, store.bans)

	v, err = gate.Check(ctx, ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, SoftBlocked, v.Kind)
	assert.Equal(t, limit+2, gate.Tracker().Count(ash.NID))

	v, err = gate.Check(ctx, ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, Escalated, v.Kind)
	require.Contains(t, store.bans, ash.NID)
	assert.Contains(t, store.bans[ash.NID].Comment, "Eevee")

	// a fresh gate (next session) rejects through the persisted list
	next := NewGate(matcher, store, &recordingSink{}, GateOptions{CatchLimit: limit, RemoteCheck: true}, zerolog.Nop())
	v, err = next.Check(ctx, ash, "Eevee", false)
	require.NoError(t, err)
	assert.Equal(t, LocalBan, v.Kind)
}

func TestGateZeroCatchLimitNeverBlocks(t *testing.T) {
	gate, matcher, _, _ := newTestGate(0)
	matcher.On("Match", mock.Anything, mock.Anything, false).Return(noMatch("Misty"), nil)

	for i := 0; i < 10; i++ {
		gate.ApplyPenalty([]domain.Participant{misty}, "Eevee")
		v, err := gate.Check(context.Background(), misty, "Eevee", false)
		require.NoError(t, err)
		assert.False(t, v.Rejected())
	}
}

type failingStore struct{ memoryBanStore }

func (s *failingStore) FindByNID(ctx context.Context, nid uint64) (*domain.LocalBan, error) {
	return nil, errors.New("disk I/O error")
}

func TestGateLocalStoreFailure(t *testing.T) {
	matcher := new(MockBanMatcher)
	matcher.On("Match", mock.Anything, "Ash", false).Return(noMatch("Ash"), nil)
	gate := NewGate(matcher, &failingStore{}, &recordingSink{}, GateOptions{RemoteCheck: true}, zerolog.Nop())

	_, err := gate.Check(context.Background(), ash, "Eevee", false)
	assert.Error(t, err)
}

func TestApplyPenaltyIgnoresUntracked(t *testing.T) {
	gate, _, _, _ := newTestGate(1)
	gate.ApplyPenalty([]domain.Participant{misty, {NID: 0, Name: "ghost"}}, "Eevee")
	assert.Equal(t, 0, gate.Tracker().Len())
}

package session

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"raidbot/internal/banmatch"
	"raidbot/internal/config"
	"raidbot/internal/domain"
	"raidbot/internal/remote"
	"raidbot/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

// Test layout: a chain {base, offset} resolves to base*0x100 + offset.
const (
	overworldAddr = 0x1000
	connectedAddr = 0x1100
	lobbyAddr     = 0x1200
	encounterAddr = 0x1300
	raidBlockAddr = 0x2000
	nidAddr       = 0x3000
	statusAddr    = 0x4000
	joinCodeAddr  = 0x5000
)

func testLayout() config.Layout {
	return config.Layout{
		Overworld:     []int64{0x10, 0},
		Connected:     []int64{0x11, 0},
		Lobby:         []int64{0x12, 0},
		InEncounter:   []int64{0x13, 0},
		RaidBlock:     []int64{0x20, 0},
		PartnerNID:    []int64{0x30, 0},
		PartnerStatus: []int64{0x40, 0},
		JoinCode:      []int64{0x50, 0},
		BoxStart:      []int64{0x60, 0},
	}
}

func testSettings(entries ...domain.RotationEntry) *config.Settings {
	if len(entries) == 0 {
		entries = []domain.RotationEntry{{Label: "Eevee", Title: "Eevee raid"}}
	}
	s := config.DefaultSettings()
	s.Rotation = entries
	s.WaitForParticipants = 10
	s.BanListURL = "http://banlist.invalid/list.json"
	s.BanListRefresh = 3
	s.CatchLimit = 2
	s.Layout = testLayout()
	s.Timings.ReconnectAttempts = 3
	return s
}

type fakeRemote struct {
	mu  sync.Mutex
	mem map[uint64]byte

	fail         error
	reconnectErr error
	resolves     int
	reconnects   int
	presses      []remote.Button

	onPress func(b remote.Button)
	onWrite func(addr uint64, data []byte)
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{mem: make(map[uint64]byte)}
	f.mem[overworldAddr] = 0x11
	f.mem[connectedAddr] = 1
	f.mem[lobbyAddr] = 1
	f.mem[encounterAddr] = 2
	return f
}

func (f *fakeRemote) poke(addr uint64, data []byte) {
	for i, b := range data {
		f.mem[addr+uint64(i)] = b
	}
}

func (f *fakeRemote) ReadBytes(ctx context.Context, addr uint64, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = f.mem[addr+uint64(i)]
	}
	return out, nil
}

func (f *fakeRemote) WriteBytes(ctx context.Context, addr uint64, data []byte) error {
	f.mu.Lock()
	if f.fail != nil {
		f.mu.Unlock()
		return f.fail
	}
	f.poke(addr, data)
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(addr, data)
	}
	return nil
}

func (f *fakeRemote) ResolvePointerChain(ctx context.Context, chain []int64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.resolves++
	var addr int64
	for i, jump := range chain {
		if i == 0 {
			addr = jump * 0x100
			continue
		}
		addr += jump
	}
	if chain[0] == 0 {
		return 0, nil
	}
	return uint64(addr), nil
}

func (f *fakeRemote) Press(ctx context.Context, b remote.Button, after time.Duration) error {
	f.mu.Lock()
	if f.fail != nil {
		f.mu.Unlock()
		return f.fail
	}
	f.presses = append(f.presses, b)
	hook := f.onPress
	f.mu.Unlock()
	if hook != nil {
		hook(b)
	}
	return ctx.Err()
}

func (f *fakeRemote) Hold(ctx context.Context, b remote.Button, hold, after time.Duration) error {
	return f.Press(ctx, b, after)
}

func (f *fakeRemote) SetStick(ctx context.Context, s remote.Stick, x, y int16, duration time.Duration) error {
	return ctx.Err()
}

func (f *fakeRemote) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

func (f *fakeRemote) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return f.reconnectErr
}

func (f *fakeRemote) Close() error {
	return nil
}

// setPartner loads participant p into guest slot i.
func (f *fakeRemote) setPartner(i int, p domain.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poke(nidAddr+uint64(i*8), binary.LittleEndian.AppendUint64(nil, p.NID))

	status := make([]byte, partnerNameOffset+partnerNameSize)
	binary.LittleEndian.PutUint32(status, p.TID)
	name, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(p.Name))
	if err != nil {
		panic(err)
	}
	copy(status[partnerNameOffset:], name)
	f.poke(statusAddr+uint64(i*0x30), status)
}

// bumpSeed increments the day seed at the start of the raid block.
func (f *fakeRemote) bumpSeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	seed := make([]byte, 8)
	for i := range seed {
		seed[i] = f.mem[raidBlockAddr+uint64(i)]
	}
	f.poke(raidBlockAddr, binary.LittleEndian.AppendUint64(nil, binary.LittleEndian.Uint64(seed)+1))
}

func (f *fakeRemote) pressCount(b remote.Button) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.presses {
		if p == b {
			n++
		}
	}
	return n
}

func (f *fakeRemote) byteAt(addr uint64) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mem[addr]
}

func (f *fakeRemote) setByte(addr uint64, b byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem[addr] = b
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type stubFetcher struct {
	entries []domain.BanEntry
}

func (s stubFetcher) Fetch(ctx context.Context) ([]domain.BanEntry, error) {
	return s.entries, nil
}

type memoryBans struct {
	mu   sync.Mutex
	bans map[uint64]domain.LocalBan
}

func (s *memoryBans) FindByNID(ctx context.Context, nid uint64) (*domain.LocalBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bans[nid]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *memoryBans) Add(ctx context.Context, ban domain.LocalBan) (*domain.LocalBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bans[ban.NID]; !ok {
		s.bans[ban.NID] = ban
	}
	b := s.bans[ban.NID]
	return &b, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func (s *recordingSink) last(kind domain.EventKind) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return domain.Event{}, false
}

type memoryHistory struct {
	records []domain.EncounterRecord
}

func (h *memoryHistory) Insert(ctx context.Context, r domain.EncounterRecord) error {
	h.records = append(h.records, r)
	return nil
}

type harness struct {
	machine *Machine
	remote  *fakeRemote
	clock   *fakeClock
	sink    *recordingSink
	history *memoryHistory
	gate    *service.Gate
}

func newHarness(t *testing.T, settings *config.Settings, banned ...domain.BanEntry) *harness {
	t.Helper()

	weights, err := banmatch.LoadLanguages("")
	require.NoError(t, err)
	cache := banmatch.NewCache(stubFetcher{entries: banned}, weights, zerolog.Nop())

	h := &harness{
		remote:  newFakeRemote(),
		clock:   newFakeClock(),
		sink:    &recordingSink{},
		history: &memoryHistory{},
	}
	h.gate = service.NewGate(cache, &memoryBans{bans: map[uint64]domain.LocalBan{}}, h.sink, service.GateOptions{
		Session:     "test",
		CatchLimit:  settings.CatchLimit,
		RemoteCheck: settings.BanListRefresh.Enabled(),
	}, zerolog.Nop())

	m, err := New(Options{
		Name:     "test",
		Settings: settings,
		Remote:   h.remote,
		Gate:     h.gate,
		History:  h.history,
		Sink:     h.sink,
		Clock:    h.clock,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	h.machine = m
	return h
}

func (h *harness) offsets(t *testing.T) Offsets {
	t.Helper()
	offs, err := h.machine.offsets.Resolve(context.Background())
	require.NoError(t, err)
	return offs
}

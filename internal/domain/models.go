package domain

import (
	"time"
)

type Phase int

const (
	PhaseInit Phase = iota
	PhaseCacheOffsets
	PhaseVerifySeed
	PhasePrepareEncounter
	PhaseAwaitLobby
	PhaseCollectParticipants
	PhaseRunEncounter
	PhaseSettleResults
	PhaseRotateOrReset
	PhaseRecover
	PhaseStopped
)

var phaseNames = map[Phase]string{
	PhaseInit:                "init",
	PhaseCacheOffsets:        "cache_offsets",
	PhaseVerifySeed:          "verify_seed",
	PhasePrepareEncounter:    "prepare_encounter",
	PhaseAwaitLobby:          "await_lobby",
	PhaseCollectParticipants: "collect_participants",
	PhaseRunEncounter:        "run_encounter",
	PhaseSettleResults:       "settle_results",
	PhaseRotateOrReset:       "rotate_or_reset",
	PhaseRecover:             "recover",
	PhaseStopped:             "stopped",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// RotationEntry is one slot of the rotation parameter set.
type RotationEntry struct {
	Label       string   `yaml:"label"`
	Seed        uint32   `yaml:"seed"`
	ContentType uint8    `yaml:"content_type"`
	Coded       bool     `yaml:"coded"`
	Payload     []string `yaml:"payload"`
	Title       string   `yaml:"title"`
	Description []string `yaml:"description"`
}

type Participant struct {
	NID  uint64
	Name string
	TID  uint32
	Slot int // 2..4
}

// DisplayTID is the six digit trainer id shown in game.
func (p Participant) DisplayTID() uint32 {
	return p.TID % 1_000_000
}

// BanEntry is a record of the remotely maintained ban list.
type BanEntry struct {
	Name     string  `json:"name"`
	Language string  `json:"language"`
	Notes    string  `json:"notes"`
	Enabled  bool    `json:"enabled"`
	Log10p   float64 `json:"log10p"`
}

// LocalBan is persisted across sessions.
type LocalBan struct {
	ID        string // nanoid
	NID       uint64
	Name      string
	Comment   string
	CreatedAt time.Time
}

type LanguageWeight struct {
	Language string `json:"language"`
	Weight   string `json:"weight"` // arithmetic expression, e.g. "1/5"
}

type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchSimilar
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSimilar:
		return "similar"
	default:
		return "none"
	}
}

type MatchResult struct {
	Candidate string
	Matched   bool
	Kind      MatchKind
	Distance  int
	Entry     *BanEntry
	Log10p    *float64 // similarity matches only
}

type EventKind string

const (
	EventLobbyWaiting      EventKind = "lobby_waiting"
	EventEncounterStarting EventKind = "encounter_starting"
	EventDisbanded         EventKind = "disbanded"
	EventRotationPending   EventKind = "rotation_pending"
	EventSettled           EventKind = "settled"
)

// OpenLobbyCode is the code shown for lobbies anyone can join.
const OpenLobbyCode = "Free For All"

type Event struct {
	Kind       EventKind
	Session    string
	Title      string
	Text       string
	Code       string // join code or OpenLobbyCode
	Names      []string
	HatTrick   bool
	Footer     string
	Screenshot []byte
	At         time.Time
}

type EncounterRecord struct {
	ID           string // nanoid
	Session      string
	Rotation     int
	Won          bool
	Participants []string
	SettledAt    time.Time
}

type EncounterTotals struct {
	Encounters int
	Wins       int
	Losses     int
}

package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
)

const (
	DBMaxOpenConns    = 4
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Bounded waits inside the session loop.
const (
	OnlinePollLimit        = 30
	OnlinePollInterval     = 500 * time.Millisecond
	LobbyConnectAttempts   = 45
	EnterEncounterAttempts = 60
	OverworldReturnLimit   = 120
	OverworldRecoverLimit  = 30
	SlotPollInterval       = 500 * time.Millisecond
	RejoinSettleDelay      = 5 * time.Second
	EncounterStartDelay    = 15 * time.Second
	BattleProgressLogEvery = 10
	StartGameTitleTimeout  = 60 * time.Second
	StartGameRescuePresses = 30
	LobbyCloseDelay        = 5 * time.Second
	ReconnectDelay         = 5 * time.Second
)

// Layout of the raid block as read from the target.
const (
	MaxParticipants   = 3
	FirstGuestSlot    = 2
	RaidSeedSlots     = 69
	RaidSlotSize      = 0x20
	RaidBlockReadSize = 2304
	DaySeedCopyOffset = 0x8
	SeedSlotBase      = 0x40
	ContentTypeOffset = 0x08
	PartnerNIDStride  = 0x8
	PartnerStatusSize = 0x30
	JoinCodeLength    = 6
	EscalationMargin  = 2
)

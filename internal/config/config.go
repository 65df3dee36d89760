package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"raidbot/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSettings = errors.New("invalid settings")

type Config struct {
	Targets       []string
	DBPath        string
	ServerPort    string
	LogLevel      string
	SettingsPath  string
	LanguagesPath string
	Settings      *Settings
}

// Settings is the operator file describing what the bots host.
type Settings struct {
	Rotation            []domain.RotationEntry `yaml:"rotation"`
	WaitForParticipants int                    `yaml:"wait_for_participants"` // seconds
	BanListURL          string                 `yaml:"ban_list_url"`
	BanListRefresh      RefreshCadence         `yaml:"ban_list_refresh"`
	CatchLimit          int                    `yaml:"catch_limit"`
	DateFormat          DateFormat             `yaml:"date_format"`
	RolloverHold        time.Duration          `yaml:"rollover_hold"`
	KeepDaySeed         bool                   `yaml:"keep_day_seed"`
	TakeScreenshot      bool                   `yaml:"take_screenshot"`
	Layout              Layout                 `yaml:"layout"`
	Timings             Timings                `yaml:"timings"`
}

// Layout holds the pointer chains of the game build being driven.
type Layout struct {
	Overworld     []int64 `yaml:"overworld"`
	Connected     []int64 `yaml:"connected"`
	RaidBlock     []int64 `yaml:"raid_block"`
	Lobby         []int64 `yaml:"lobby"`
	InEncounter   []int64 `yaml:"in_encounter"`
	PartnerNID    []int64 `yaml:"partner_nid"`
	PartnerStatus []int64 `yaml:"partner_status"`
	JoinCode      []int64 `yaml:"join_code"`
	BoxStart      []int64 `yaml:"box_start"`
}

type Timings struct {
	ExtraTimeLoadProfile   time.Duration `yaml:"extra_time_load_profile"`
	ExtraTimeCheckDLC      time.Duration `yaml:"extra_time_check_dlc"`
	ExtraTimeLoadGame      time.Duration `yaml:"extra_time_load_game"`
	ExtraTimeLoadOverworld time.Duration `yaml:"extra_time_load_overworld"`
	ExtraTimeConnectOnline time.Duration `yaml:"extra_time_connect_online"`
	AvoidSystemUpdate      bool          `yaml:"avoid_system_update"`
	ReconnectAttempts      int           `yaml:"reconnect_attempts"`
	ExtraReconnectDelay    time.Duration `yaml:"extra_reconnect_delay"`
}

type DateFormat string

const (
	DDMMYY DateFormat = "DDMMYY"
	MMDDYY DateFormat = "MMDDYY"
	YYMMDD DateFormat = "YYMMDD"
)

// RefreshCadence is the number of encounters between remote ban list
// refetches, or CadenceDisabled.
type RefreshCadence int

const CadenceDisabled RefreshCadence = -1

func (c RefreshCadence) Enabled() bool {
	return c > 0
}

func (c *RefreshCadence) UnmarshalYAML(node *yaml.Node) error {
	if strings.EqualFold(node.Value, "disabled") {
		*c = CadenceDisabled
		return nil
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("ban_list_refresh must be a positive integer or \"disabled\": %w", err)
	}
	*c = RefreshCadence(n)
	return nil
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		Targets:       splitList(getEnv("BOT_TARGETS", "")),
		DBPath:        getEnv("DB_PATH", "raidbot.db"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SettingsPath:  getEnv("SETTINGS_PATH", "settings.yaml"),
		LanguagesPath: getEnv("LANGUAGES_PATH", ""),
	}

	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("%w: BOT_TARGETS is required", ErrInvalidSettings)
	}

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	if url := getEnv("BAN_LIST_URL", ""); url != "" {
		settings.BanListURL = url
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cfg.Settings = settings

	logger.Info().
		Strs("targets", cfg.Targets).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("rotation_slots", len(settings.Rotation)).
		Int("ban_list_refresh", int(settings.BanListRefresh)).
		Int("catch_limit", settings.CatchLimit).
		Msg("configuration loaded")

	return cfg, nil
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

func DefaultSettings() *Settings {
	return &Settings{
		WaitForParticipants: 90,
		BanListRefresh:      3,
		DateFormat:          MMDDYY,
		RolloverHold:        5 * time.Second,
		Timings: Timings{
			ReconnectAttempts:   30,
			ExtraReconnectDelay: 0,
		},
	}
}

// Validate rejects settings the session loop cannot run with.
func (s *Settings) Validate() error {
	if len(s.Rotation) == 0 {
		return fmt.Errorf("%w: rotation must have at least one entry", ErrInvalidSettings)
	}
	if s.WaitForParticipants < 0 || s.WaitForParticipants > 180 {
		return fmt.Errorf("%w: wait_for_participants must be between 0 and 180 seconds, got %d", ErrInvalidSettings, s.WaitForParticipants)
	}
	if s.BanListRefresh == 0 || s.BanListRefresh < CadenceDisabled {
		return fmt.Errorf("%w: ban_list_refresh must be greater than 0, or disabled", ErrInvalidSettings)
	}
	if s.BanListRefresh.Enabled() && s.BanListURL == "" {
		return fmt.Errorf("%w: ban_list_url is required unless ban_list_refresh is disabled", ErrInvalidSettings)
	}
	if s.CatchLimit < 0 {
		return fmt.Errorf("%w: catch_limit cannot be negative", ErrInvalidSettings)
	}
	switch s.DateFormat {
	case DDMMYY, MMDDYY, YYMMDD:
	default:
		return fmt.Errorf("%w: unknown date_format %q", ErrInvalidSettings, s.DateFormat)
	}
	if s.RolloverHold <= 0 {
		return fmt.Errorf("%w: rollover_hold must be positive", ErrInvalidSettings)
	}
	if s.Timings.ReconnectAttempts < 0 {
		return fmt.Errorf("%w: reconnect_attempts cannot be negative", ErrInvalidSettings)
	}
	return s.Layout.validate()
}

func (l Layout) validate() error {
	chains := []struct {
		name  string
		chain []int64
	}{
		{"overworld", l.Overworld},
		{"connected", l.Connected},
		{"raid_block", l.RaidBlock},
		{"lobby", l.Lobby},
		{"in_encounter", l.InEncounter},
		{"partner_nid", l.PartnerNID},
		{"partner_status", l.PartnerStatus},
		{"join_code", l.JoinCode},
		{"box_start", l.BoxStart},
	}
	for _, c := range chains {
		if len(c.chain) == 0 {
			return fmt.Errorf("%w: layout.%s pointer chain is empty", ErrInvalidSettings, c.name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)

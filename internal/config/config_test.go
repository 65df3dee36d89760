package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadExample(t *testing.T) *Settings {
	t.Helper()
	s, err := LoadSettings(filepath.Join("..", "..", "configs", "settings.example.yaml"))
	require.NoError(t, err)
	return s
}

func TestExampleSettingsAreValid(t *testing.T) {
	s := loadExample(t)

	require.NoError(t, s.Validate())
	assert.Len(t, s.Rotation, 2)
	assert.Equal(t, uint32(0x1A2B3C4D), s.Rotation[0].Seed)
	assert.True(t, s.Rotation[0].Coded)
	assert.Equal(t, RefreshCadence(3), s.BanListRefresh)
	assert.Equal(t, 5*time.Second, s.RolloverHold)
	assert.Equal(t, []int64{0x4505B88, 0x30}, s.Layout.Connected)
}

func TestRefreshCadenceDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ban_list_refresh: disabled\n"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, CadenceDisabled, s.BanListRefresh)
	assert.False(t, s.BanListRefresh.Enabled())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"empty rotation", func(s *Settings) { s.Rotation = nil }},
		{"negative wait", func(s *Settings) { s.WaitForParticipants = -1 }},
		{"wait above 180", func(s *Settings) { s.WaitForParticipants = 181 }},
		{"zero cadence", func(s *Settings) { s.BanListRefresh = 0 }},
		{"cadence below disabled", func(s *Settings) { s.BanListRefresh = -2 }},
		{"missing url", func(s *Settings) { s.BanListURL = "" }},
		{"negative catch limit", func(s *Settings) { s.CatchLimit = -1 }},
		{"unknown date format", func(s *Settings) { s.DateFormat = "YYDDMM" }},
		{"zero hold", func(s *Settings) { s.RolloverHold = 0 }},
		{"empty chain", func(s *Settings) { s.Layout.RaidBlock = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadExample(t)
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestValidateAcceptsBounds(t *testing.T) {
	s := loadExample(t)
	s.WaitForParticipants = 0
	assert.NoError(t, s.Validate())

	s.WaitForParticipants = 180
	s.BanListRefresh = CadenceDisabled
	s.BanListURL = ""
	assert.NoError(t, s.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"192.168.0.10:6000", "192.168.0.11:6000"}, splitList(" 192.168.0.10:6000, ,192.168.0.11:6000"))
	assert.Nil(t, splitList(""))
}

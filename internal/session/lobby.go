package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raidbot/internal/constants"
	"raidbot/internal/domain"
	"raidbot/internal/remote"
)

type LobbyOutcome int

const (
	LobbyFull LobbyOutcome = iota
	LobbyTimedOut
	LobbyEmpty
	LobbyRejected
)

func (o LobbyOutcome) String() string {
	switch o {
	case LobbyFull:
		return "full"
	case LobbyTimedOut:
		return "timed_out"
	case LobbyRejected:
		return "rejected"
	default:
		return "empty"
	}
}

// Lobby is the result of collecting participants. Participants are in join
// order.
type Lobby struct {
	Outcome      LobbyOutcome
	Participants []domain.Participant
}

// Ready reports whether the encounter should start.
func (l Lobby) Ready() bool {
	return l.Outcome == LobbyFull || l.Outcome == LobbyTimedOut
}

func (m *Machine) awaitLobby(ctx context.Context, offs Offsets) error {
	m.logger.Info().Msg("connecting to lobby")
	for attempt := 0; ; attempt++ {
		ok, err := m.lobbyConnected(ctx, offs)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt == constants.LobbyConnectAttempts {
			return fmt.Errorf("%w: lobby not connected after %d attempts", ErrDesync, attempt)
		}
		if err := m.remote.Press(ctx, remote.A, time.Second); err != nil {
			return err
		}
	}
}

// refreshDue reports whether the first gate check of this lobby refetches
// the remote ban list.
func (m *Machine) refreshDue() bool {
	cadence := m.settings.BanListRefresh
	if !cadence.Enabled() {
		return false
	}
	encounters, _, _ := m.counters()
	return encounters == 0 || encounters%int(cadence) == 0
}

// collectParticipants polls the guest slots until the lobby is full, the
// wait elapses, or the gate rejects someone.
func (m *Machine) collectParticipants(ctx context.Context, offs Offsets) (Lobby, error) {
	if err := m.announceLobby(ctx); err != nil {
		return Lobby{}, err
	}

	label := m.entry().Label
	deadline := m.clock.Now().Add(time.Duration(m.settings.WaitForParticipants) * time.Second)
	refresh := m.refreshDue()
	var joined []domain.Participant

	for len(joined) < constants.MaxParticipants && m.clock.Now().Before(deadline) {
		for i := range constants.MaxParticipants {
			m.logger.Debug().Int("slot", i+constants.FirstGuestSlot).Msg("waiting for participant to load")

			p, err := m.waitPartner(ctx, offs, i, deadline)
			if err != nil {
				return Lobby{}, err
			}

			if p.NID != 0 && p.Name != "" {
				idx := indexOfNID(joined, p.NID)
				if idx < 0 {
					verdict, err := m.gate.Check(ctx, p, label, refresh)
					if err != nil {
						return Lobby{}, err
					}
					refresh = false
					if verdict.Rejected() {
						return Lobby{Outcome: LobbyRejected, Participants: joined}, nil
					}
					joined = append(joined, p)
				} else {
					joined[idx] = p
				}
			}

			if len(joined) == constants.MaxParticipants || !m.clock.Now().Before(deadline) {
				break
			}
		}
	}

	if err := m.clock.Sleep(ctx, constants.LobbyCloseDelay); err != nil {
		return Lobby{}, err
	}

	switch {
	case len(joined) == constants.MaxParticipants:
		return Lobby{Outcome: LobbyFull, Participants: joined}, nil
	case len(joined) > 0:
		return Lobby{Outcome: LobbyTimedOut, Participants: joined}, nil
	default:
		m.logger.Info().Msg("nobody joined the lobby")
		return Lobby{Outcome: LobbyEmpty}, nil
	}
}

// waitPartner polls slot i until both its NID and its name are loaded or the
// deadline passes.
func (m *Machine) waitPartner(ctx context.Context, offs Offsets, i int, deadline time.Time) (domain.Participant, error) {
	for {
		p, err := m.readPartner(ctx, offs, i)
		if err != nil {
			return p, err
		}
		if (p.NID != 0 && p.Name != "") || !m.clock.Now().Before(deadline) {
			return p, nil
		}
		if err := m.clock.Sleep(ctx, constants.SlotPollInterval); err != nil {
			return p, err
		}
	}
}

func indexOfNID(ps []domain.Participant, nid uint64) int {
	for i, p := range ps {
		if p.NID == nid {
			return i
		}
	}
	return -1
}

func (m *Machine) announceLobby(ctx context.Context) error {
	entry := m.entry()
	event := domain.Event{
		Kind:  domain.EventLobbyWaiting,
		Title: entryTitle(entry),
		Text:  strings.Join(entry.Description, "\n"),
	}
	if entry.Coded {
		data, err := m.peekChain(ctx, "join_code", m.settings.Layout.JoinCode, constants.JoinCodeLength)
		if err != nil {
			return err
		}
		m.joinCode = strings.TrimRight(string(data), "\x00")
		m.logger.Info().Str("code", m.joinCode).Msg("lobby code")
	} else {
		m.joinCode = domain.OpenLobbyCode
	}
	event.Code = m.joinCode
	event.Screenshot = m.screenshot(ctx)
	m.publish(ctx, event)
	return nil
}

func entryTitle(entry domain.RotationEntry) string {
	if entry.Title != "" {
		return entry.Title
	}
	return "Raid Notification"
}

func (m *Machine) screenshot(ctx context.Context) []byte {
	if !m.settings.TakeScreenshot {
		return nil
	}
	img, err := m.remote.Screenshot(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to take screenshot")
		return nil
	}
	return img
}

// noLobby recovers from a lobby that did not fill. A single slot rotation
// remakes the lobby in place; otherwise the next rotation entry is loaded.
func (m *Machine) noLobby(ctx context.Context, offs Offsets, lobby Lobby) error {
	m.logger.Info().Str("outcome", lobby.Outcome.String()).Msg("lobby did not start")

	if m.multiSlot() {
		next := m.advanceRotation()
		m.logger.Info().Int("rotation", next).Msg("resetting game and moving on to next rotation")
		m.setPhase(domain.PhaseRotateOrReset)
		return m.restartGame(ctx)
	}

	m.logger.Info().Msg("attempting to remake lobby")
	regroup := []step{
		press(remote.B, 2*time.Second),
		press(remote.A, 3*time.Second),
		press(remote.A, 3*time.Second),
		press(remote.B, time.Second),
	}
	if err := m.play(ctx, regroup); err != nil {
		return err
	}

	ok, err := m.onOverworld(ctx, offs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not on the overworld after remaking the lobby", ErrDesync)
	}

	m.logger.Info().Msg("clearing stored participants")
	for i := range constants.MaxParticipants {
		if err := m.pokeChain(ctx, fmt.Sprintf("partner_status[%d]", i), statusChain(m.settings.Layout.PartnerStatus, i), make([]byte, 16)); err != nil {
			return err
		}
	}
	return nil
}

package session

import (
	"context"
	"fmt"
	"time"

	"raidbot/internal/constants"
	"raidbot/internal/domain"
	"raidbot/internal/remote"
)

// runEncounter starts the encounter, re-reads who stayed, waits for it to
// end and returns to the overworld. It returns the participants present when
// the encounter started.
func (m *Machine) runEncounter(ctx context.Context, offs Offsets, joined []domain.Participant) ([]domain.Participant, error) {
	var final []domain.Participant

	connected, err := m.lobbyConnected(ctx, offs)
	if err != nil {
		return nil, err
	}
	if connected {
		m.logger.Info().Msg("preparing for the encounter")
		if err := m.enterEncounter(ctx, offs); err != nil {
			return nil, err
		}

		if final, err = m.rereadParticipants(ctx, offs, joined); err != nil {
			return nil, err
		}
		if sameIdentity(final) {
			m.publish(ctx, domain.Event{
				Kind:  domain.EventDisbanded,
				Title: entryTitle(m.entry()),
				Text:  "Oops! Something went wrong, resetting to recover.",
				Code:  m.joinCode,
			})
			return nil, fmt.Errorf("%w: every slot read the same identity", ErrDesync)
		}

		names := make([]string, len(final))
		for i, p := range final {
			names[i] = p.Name
		}
		hatTrick := len(final) == constants.MaxParticipants && allEqual(names)

		if err := m.clock.Sleep(ctx, constants.EncounterStartDelay); err != nil {
			return nil, err
		}
		title := entryTitle(m.entry())
		if hatTrick {
			title = fmt.Sprintf("%s with the Hat Trick!", names[0])
		}
		m.publish(ctx, domain.Event{
			Kind:       domain.EventEncounterStarting,
			Title:      title,
			Names:      names,
			HatTrick:   hatTrick,
			Code:       m.joinCode,
			Screenshot: m.screenshot(ctx),
		})

		for presses := 1; ; presses++ {
			ok, err := m.lobbyConnected(ctx, offs)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if err := m.remote.Press(ctx, remote.A, 3500*time.Millisecond); err != nil {
				return nil, err
			}
			if presses%constants.BattleProgressLogEvery == 0 {
				m.logger.Info().Int("presses", presses).Msg("still in the encounter")
			}
		}
	}

	m.logger.Info().Msg("lobby disbanded, returning to overworld")
	leave := []step{
		press(remote.B, 500*time.Millisecond),
		press(remote.B, 500*time.Millisecond),
		press(remote.DDown, 500*time.Millisecond),
	}
	if err := m.play(ctx, leave); err != nil {
		return nil, err
	}
	for n := 0; ; n++ {
		ok, err := m.onOverworld(ctx, offs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if n == constants.OverworldReturnLimit {
			return nil, fmt.Errorf("%w: did not return to the overworld", ErrDesync)
		}
		if err := m.remote.Press(ctx, remote.A, time.Second); err != nil {
			return nil, err
		}
	}
	return final, nil
}

func (m *Machine) enterEncounter(ctx context.Context, offs Offsets) error {
	for n := 0; ; n++ {
		ok, err := m.inEncounter(ctx, offs)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if n == constants.EnterEncounterAttempts {
			return fmt.Errorf("%w: encounter did not start", ErrDesync)
		}
		if err := m.remote.Press(ctx, remote.A, time.Second); err != nil {
			return err
		}
	}
}

// rereadParticipants clears the NID slots and reads them again, dropping
// anyone who left before the encounter started.
func (m *Machine) rereadParticipants(ctx context.Context, offs Offsets, joined []domain.Participant) ([]domain.Participant, error) {
	if err := m.remote.WriteBytes(ctx, offs.NIDs[0], make([]byte, 32)); err != nil {
		return nil, err
	}
	if err := m.clock.Sleep(ctx, constants.RejoinSettleDelay); err != nil {
		return nil, err
	}

	var final []domain.Participant
	for i := range constants.MaxParticipants {
		p, err := m.readPartner(ctx, offs, i)
		if err != nil {
			return nil, err
		}
		if p.NID == 0 || p.Name == "" {
			continue
		}
		final = append(final, p)

		log := m.logger.Info().Int("slot", p.Slot).Str("name", p.Name)
		if indexOfName(joined, p.Name) >= 0 {
			log.Msg("participant matches lobby check")
		} else {
			log.Uint32("tid", p.DisplayTID()).Uint64("nid", p.NID).Msg("new participant")
		}
	}
	return final, nil
}

// sameIdentity reports a bad read: more than one slot and every slot holds
// the same NID.
func sameIdentity(ps []domain.Participant) bool {
	if len(ps) < 2 {
		return false
	}
	for _, p := range ps[1:] {
		if p.NID != ps[0].NID {
			return false
		}
	}
	return true
}

func indexOfName(ps []domain.Participant, name string) int {
	for i, p := range ps {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func allEqual(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names[1:] {
		if n != names[0] {
			return false
		}
	}
	return true
}

// settle is the only place counters change.
func (m *Machine) settle(ctx context.Context, final []domain.Participant, before, after int) {
	won := before > after
	rotation := m.rotation()
	entry := m.entry()

	m.mu.Lock()
	m.status.Encounters++
	if won {
		m.status.Wins++
	} else {
		m.status.Losses++
	}
	m.mu.Unlock()

	if won {
		m.logger.Info().Int("before", before).Int("after", after).Msg("encounter won")
		m.gate.ApplyPenalty(final, entry.Label)
		if m.multiSlot() {
			next := m.advanceRotation()
			m.logger.Info().Int("rotation", next).Int("replace_index", m.seedIndex).Msg("rotating to next entry")
			upNext := m.settings.Rotation[next]
			m.publish(ctx, domain.Event{
				Kind:  domain.EventRotationPending,
				Title: entryTitle(upNext),
				Text:  fmt.Sprintf("Up next: %s", upNext.Label),
			})
		}
	} else {
		m.logger.Info().Int("before", before).Int("after", after).Msg("encounter lost")
	}

	names := make([]string, len(final))
	for i, p := range final {
		names[i] = p.Name
	}
	record := domain.EncounterRecord{
		Session:      m.name,
		Rotation:     rotation,
		Won:          won,
		Participants: names,
		SettledAt:    m.clock.Now().UTC(),
	}
	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	if err := m.history.Insert(dbCtx, record); err != nil {
		m.logger.Warn().Err(err).Msg("failed to record encounter history")
	}
	cancel()

	result := "lost"
	if won {
		result = "won"
	}
	m.publish(ctx, domain.Event{
		Kind:  domain.EventSettled,
		Title: entryTitle(entry),
		Text:  fmt.Sprintf("Encounter %s", result),
		Names: names,
	})

	m.correctionApplied = false
	m.desyncRestarted = false
}

package session

import (
	"context"
	"fmt"

	"raidbot/internal/constants"
)

// reconnect reconnects to the target and reopens the game. Each failed
// attempt, including a reopen that fails, uses up one of ReconnectAttempts.
func (m *Machine) reconnect(ctx context.Context) error {
	attempts := m.settings.Timings.ReconnectAttempts
	delay := constants.ReconnectDelay + m.settings.Timings.ExtraReconnectDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		m.logger.Info().Int("attempt", attempt).Int("of", attempts).Msg("trying to reconnect")

		err := m.remote.Reconnect(ctx)
		if err == nil {
			m.logger.Info().Msg("reconnected, attempting full recovery")
			if err = m.restartGame(ctx); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("recovery attempt failed")

		if attempt < attempts {
			if err := m.clock.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: after %d attempts", ErrConnectivityExhausted, attempts)
}

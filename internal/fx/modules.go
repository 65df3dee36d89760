package fx

import (
	"raidbot/internal/api"
	"raidbot/internal/banmatch"
	"raidbot/internal/config"
	"raidbot/internal/database"
	"raidbot/internal/logger"
	"raidbot/internal/notify"
	"raidbot/internal/repository"
	"raidbot/internal/server"
	"raidbot/internal/session"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideBanCache loads the language table and builds the shared ban list
// cache on top of the remote list client.
func ProvideBanCache(cfg *config.Config, client *api.BanListClient, logger zerolog.Logger) (*banmatch.Cache, error) {
	weights, err := banmatch.LoadLanguages(cfg.LanguagesPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("languages", len(weights)).Msg("language table loaded")
	return banmatch.NewCache(client, weights, logger.With().Str("component", "banmatch").Logger()), nil
}

func ProvideSink(logger zerolog.Logger) notify.Sink {
	return notify.NewLogSink(logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewBanRepository),
	fx.Provide(repository.NewEncounterRepository),
	// api client
	fx.Provide(api.NewBanListClient),
	// svc
	fx.Provide(ProvideBanCache),
	fx.Provide(ProvideSink),
	fx.Provide(session.NewRunner),
	// server
	fx.Provide(server.NewStatusServer),
)

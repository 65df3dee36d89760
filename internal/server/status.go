package server

import (
	"context"
	"net/http"
	"time"

	"raidbot/internal/domain"
	"raidbot/internal/middleware"
	"raidbot/internal/repository"
	"raidbot/internal/session"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	StatusServicePath  = "/raidbot.v1.StatusService/"
	GetStatusProcedure = StatusServicePath + "GetStatus"
)

type SessionSource interface {
	Statuses() []session.Status
}

type HistorySource interface {
	Totals(ctx context.Context, session string) (domain.EncounterTotals, error)
	Recent(ctx context.Context, session string, limit int) ([]domain.EncounterRecord, error)
}

type BanLister interface {
	List(ctx context.Context) ([]domain.LocalBan, error)
}

const recentEncounters = 5

// StatusServer reports the live state of every session plus what the
// encounter history and the local ban list hold.
type StatusServer struct {
	sessions SessionSource
	history  HistorySource
	bans     BanLister
	logger   zerolog.Logger
}

func NewStatusServer(runner *session.Runner, history *repository.EncounterRepository, bans *repository.BanRepository, logger zerolog.Logger) *StatusServer {
	return newStatusServer(runner, history, bans, logger)
}

func newStatusServer(sessions SessionSource, history HistorySource, bans BanLister, logger zerolog.Logger) *StatusServer {
	return &StatusServer{sessions: sessions, history: history, bans: bans, logger: logger}
}

func (s *StatusServer) Handler() (string, http.Handler) {
	return StatusServicePath, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus)
}

func (s *StatusServer) GetStatus(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	statuses := s.sessions.Statuses()
	sessions := make([]any, 0, len(statuses))

	for _, st := range statuses {
		totals, err := s.history.Totals(ctx, st.Session)
		if err != nil {
			return nil, s.internal(ctx, err, st.Session, "failed to load encounter totals")
		}
		records, err := s.history.Recent(ctx, st.Session, recentEncounters)
		if err != nil {
			return nil, s.internal(ctx, err, st.Session, "failed to load recent encounters")
		}
		recent := make([]any, 0, len(records))
		for _, rec := range records {
			names := make([]any, len(rec.Participants))
			for i, n := range rec.Participants {
				names[i] = n
			}
			recent = append(recent, map[string]any{
				"rotation":     rec.Rotation,
				"won":          rec.Won,
				"participants": names,
				"settled_at":   rec.SettledAt.Format(time.RFC3339),
			})
		}

		sessions = append(sessions, map[string]any{
			"session":    st.Session,
			"run_id":     st.RunID,
			"phase":      st.Phase.String(),
			"rotation":   st.Rotation,
			"label":      st.Label,
			"encounters": st.Encounters,
			"wins":       st.Wins,
			"losses":     st.Losses,
			"started_at": st.StartedAt.Format(time.RFC3339),
			"last_error": st.LastError,
			"lifetime": map[string]any{
				"encounters": totals.Encounters,
				"wins":       totals.Wins,
				"losses":     totals.Losses,
			},
			"recent": recent,
		})
	}

	bans, err := s.bans.List(ctx)
	if err != nil {
		return nil, s.internal(ctx, err, "", "failed to list local bans")
	}

	payload, err := structpb.NewStruct(map[string]any{
		"sessions":   sessions,
		"local_bans": len(bans),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(payload), nil
}

func (s *StatusServer) internal(ctx context.Context, err error, session, msg string) error {
	s.logger.Error().
		Err(err).
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("session", session).
		Msg(msg)
	return connect.NewError(connect.CodeInternal, err)
}

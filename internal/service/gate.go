package service

import (
	"context"
	"fmt"
	"time"

	"raidbot/internal/constants"
	"raidbot/internal/domain"
	"raidbot/internal/notify"

	"github.com/rs/zerolog"
)

type BanMatcher interface {
	Match(ctx context.Context, name string, refresh bool) (domain.MatchResult, error)
}

type LocalBanStore interface {
	FindByNID(ctx context.Context, nid uint64) (*domain.LocalBan, error)
	Add(ctx context.Context, ban domain.LocalBan) (*domain.LocalBan, error)
}

type VerdictKind int

const (
	Admitted VerdictKind = iota
	GlobalBan
	LocalBan
	Escalated
	SoftBlocked
)

func (k VerdictKind) String() string {
	switch k {
	case GlobalBan:
		return "global_ban"
	case LocalBan:
		return "local_ban"
	case Escalated:
		return "escalated"
	case SoftBlocked:
		return "soft_blocked"
	default:
		return "admitted"
	}
}

type Verdict struct {
	Kind   VerdictKind
	Reason string
}

func (v Verdict) Rejected() bool {
	return v.Kind != Admitted
}

type GateOptions struct {
	Session    string
	CatchLimit int
	// RemoteCheck is false when the remote ban list is disabled.
	RemoteCheck bool
}

// Gate decides whether a participant may stay in the lobby.
type Gate struct {
	matcher BanMatcher
	store   LocalBanStore
	sink    notify.Sink
	tracker *Tracker
	opts    GateOptions
	logger  zerolog.Logger
	now     func() time.Time
}

func NewGate(matcher BanMatcher, store LocalBanStore, sink notify.Sink, opts GateOptions, logger zerolog.Logger) *Gate {
	return &Gate{
		matcher: matcher,
		store:   store,
		sink:    sink,
		tracker: NewTracker(),
		opts:    opts,
		logger:  logger.With().Str("component", "gate").Logger(),
		now:     time.Now,
	}
}

func (g *Gate) Tracker() *Tracker {
	return g.tracker
}

// Check runs hard ban lookups, then the escalation check, then the soft block
// check. The first one that fires decides and no further checks run.
func (g *Gate) Check(ctx context.Context, p domain.Participant, label string, refresh bool) (Verdict, error) {
	g.logger.Info().
		Int("slot", p.Slot).
		Str("name", p.Name).
		Uint32("tid", p.DisplayTID()).
		Uint64("nid", p.NID).
		Msg("checking participant")
	g.tracker.Register(p.NID)
	count := g.tracker.Count(p.NID)

	if g.opts.RemoteCheck {
		result, err := g.matcher.Match(ctx, p.Name, refresh)
		if err != nil {
			return Verdict{}, fmt.Errorf("checking %q against remote ban list: %w", p.Name, err)
		}
		if result.Matched {
			reason := fmt.Sprintf("Banned user %s found from global banlist.\nReason: %s", p.Name, result.Entry.Notes)
			if result.Log10p != nil {
				reason += fmt.Sprintf("\nLog10p: %.4f", *result.Log10p)
			}
			return g.reject(ctx, p, Verdict{Kind: GlobalBan, Reason: reason}), nil
		}
	}

	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	local, err := g.store.FindByNID(dbCtx, p.NID)
	cancel()
	if err != nil {
		return Verdict{}, fmt.Errorf("checking %q against local ban list: %w", p.Name, err)
	}
	if local != nil {
		reason := fmt.Sprintf("Penalty #%d\n%s was found in the host's ban list.\n%s", count, local.Name, local.Comment)
		return g.reject(ctx, p, Verdict{Kind: LocalBan, Reason: reason}), nil
	}

	limit := g.opts.CatchLimit
	if limit == 0 || count < limit {
		return Verdict{Kind: Admitted}, nil
	}

	g.tracker.Set(p.NID, count+1)
	g.logger.Info().Str("name", p.Name).Int("penalty", count).Msg("participant is over the catch limit")

	if count >= limit+constants.EscalationMargin {
		msg := fmt.Sprintf("%s is now banned for repeatedly attempting to go beyond the catch limit for %s on %s.",
			p.Name, label, g.now().Format(time.DateTime))
		dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
		if _, err := g.store.Add(dbCtx, domain.LocalBan{NID: p.NID, Name: p.Name, Comment: msg}); err != nil {
			g.logger.Error().Err(err).Uint64("nid", p.NID).Msg("failed to persist escalated ban")
		}
		cancel()
		return g.reject(ctx, p, Verdict{Kind: Escalated, Reason: fmt.Sprintf("Penalty #%d\n%s", count, msg)}), nil
	}

	reason := fmt.Sprintf("Penalty #%d\n%s has already reached the catch limit.\nPlease do not join again.\n"+
		"Repeated attempts to join like this will result in a ban from future raids.", count, p.Name)
	return g.reject(ctx, p, Verdict{Kind: SoftBlocked, Reason: reason}), nil
}

func (g *Gate) reject(ctx context.Context, p domain.Participant, v Verdict) Verdict {
	g.logger.Warn().
		Str("name", p.Name).
		Uint64("nid", p.NID).
		Str("verdict", v.Kind.String()).
		Msg(v.Reason)

	err := g.sink.Publish(ctx, domain.Event{
		Kind:    domain.EventDisbanded,
		Session: g.opts.Session,
		Title:   "Lobby canceled",
		Text:    v.Reason,
		Names:   []string{p.Name},
		At:      g.now(),
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to publish rejection")
	}
	return v
}

// ApplyPenalty counts a completed encounter for every tracked participant.
func (g *Gate) ApplyPenalty(participants []domain.Participant, label string) {
	for _, p := range participants {
		if p.NID == 0 || !g.tracker.Tracked(p.NID) {
			continue
		}
		count := g.tracker.Increment(p.NID)
		g.logger.Info().Str("name", p.Name).Int("count", count).Msg("participant completed the encounter")

		if g.opts.CatchLimit != 0 && count == g.opts.CatchLimit {
			g.logger.Info().
				Str("name", p.Name).
				Int("limit", g.opts.CatchLimit).
				Str("rotation", label).
				Msg("participant met the catch limit, blocking for the rest of this session")
		}
	}
}

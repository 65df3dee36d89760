package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raidbot/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// BanRepository persists the host's own ban list across sessions.
type BanRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewBanRepository(sqlDB *sql.DB, logger zerolog.Logger) *BanRepository {
	return &BanRepository{db: sqlDB, logger: logger}
}

// FindByNID returns nil when the identity is not banned.
func (r *BanRepository) FindByNID(ctx context.Context, nid uint64) (*domain.LocalBan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, nid, name, comment, created_at FROM local_bans WHERE nid = ?`,
		int64(nid))

	ban, err := scanBan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Uint64("nid", nid).Msg("failed to look up local ban")
		return nil, fmt.Errorf("failed to look up local ban: %w", err)
	}
	return ban, nil
}

// Add stores a ban. Banning an identity twice keeps the first entry.
func (r *BanRepository) Add(ctx context.Context, ban domain.LocalBan) (*domain.LocalBan, error) {
	if ban.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		ban.ID = id
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_bans (id, nid, name, comment, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(nid) DO NOTHING`,
		ban.ID, int64(ban.NID), ban.Name, ban.Comment, ban.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Uint64("nid", ban.NID).Msg("failed to add local ban")
		return nil, fmt.Errorf("failed to add local ban: %w", err)
	}

	r.logger.Info().Uint64("nid", ban.NID).Str("name", ban.Name).Msg("identity added to local ban list")
	return r.FindByNID(ctx, ban.NID)
}

func (r *BanRepository) List(ctx context.Context) ([]domain.LocalBan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, nid, name, comment, created_at FROM local_bans ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []domain.LocalBan
	for rows.Next() {
		ban, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		bans = append(bans, *ban)
	}
	return bans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBan(s scanner) (*domain.LocalBan, error) {
	var (
		ban domain.LocalBan
		nid int64
	)
	if err := s.Scan(&ban.ID, &nid, &ban.Name, &ban.Comment, &ban.CreatedAt); err != nil {
		return nil, err
	}
	ban.NID = uint64(nid)
	return &ban, nil
}

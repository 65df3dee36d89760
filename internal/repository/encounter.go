package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"raidbot/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type EncounterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewEncounterRepository(sqlDB *sql.DB, logger zerolog.Logger) *EncounterRepository {
	return &EncounterRepository{db: sqlDB, logger: logger}
}

func (r *EncounterRepository) Insert(ctx context.Context, record domain.EncounterRecord) error {
	if record.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		record.ID = id
	}
	if record.SettledAt.IsZero() {
		record.SettledAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO encounters (id, session, rotation, won, participants, settled_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Session, record.Rotation, record.Won, strings.Join(record.Participants, "\n"), record.SettledAt)
	if err != nil {
		r.logger.Error().Err(err).Str("session", record.Session).Msg("failed to record encounter")
		return fmt.Errorf("failed to record encounter: %w", err)
	}
	return nil
}

func (r *EncounterRepository) Totals(ctx context.Context, session string) (domain.EncounterTotals, error) {
	var totals domain.EncounterTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN won THEN 1 ELSE 0 END), 0) FROM encounters WHERE session = ?`,
		session).Scan(&totals.Encounters, &totals.Wins)
	if err != nil {
		return domain.EncounterTotals{}, fmt.Errorf("failed to total encounters: %w", err)
	}
	totals.Losses = totals.Encounters - totals.Wins
	return totals, nil
}

func (r *EncounterRepository) Recent(ctx context.Context, session string, limit int) ([]domain.EncounterRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session, rotation, won, participants, settled_at FROM encounters
		 WHERE session = ? ORDER BY settled_at DESC LIMIT ?`,
		session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.EncounterRecord
	for rows.Next() {
		var (
			rec   domain.EncounterRecord
			names string
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Rotation, &rec.Won, &names, &rec.SettledAt); err != nil {
			return nil, err
		}
		if names != "" {
			rec.Participants = strings.Split(names, "\n")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

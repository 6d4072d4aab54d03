// Package repository provides persistence implementations for gateway
// sessions keyed by browser session id.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
)

// ErrSessionNotFound is returned when no record exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// PostgresSessionRepository stores sessions in the sessions table.
type PostgresSessionRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// Now defaults to time.Now; it stamps updated_at.
	Now func() time.Time
}

// NewPostgresSessionRepository creates a repository over db, which must be
// connected to a PostgreSQL instance with the sessions schema applied.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{DB: db, Now: time.Now}
}

// Load returns the record of sid, or ErrSessionNotFound.
func (s *PostgresSessionRepository) Load(ctx context.Context, sid string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT uid, email, display_name, id_token, refresh_token, expires_at FROM sessions WHERE sid = $1`,
		sid,
	).Scan(&rec.UID, &rec.Email, &rec.DisplayName, &rec.IDToken, &rec.RefreshToken, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &rec, nil
}

// Save inserts or replaces the record of sid.
func (s *PostgresSessionRepository) Save(ctx context.Context, sid string, rec *models.SessionRecord) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO sessions (sid, uid, email, display_name, id_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sid) DO UPDATE SET
			uid = EXCLUDED.uid,
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			id_token = EXCLUDED.id_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`,
		sid, rec.UID, rec.Email, rec.DisplayName, rec.IDToken, rec.RefreshToken, rec.ExpiresAt, s.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the record of sid. A missing record yields
// ErrSessionNotFound.
func (s *PostgresSessionRepository) Delete(ctx context.Context, sid string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE sid = $1`, sid)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Package store persists sessions and their fields.
package store

import (
	"context"
	"time"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// Store is the record store behind a filling session. Implementations
// return *models.NotFoundError for unknown sessions.
type Store interface {
	// CreateSession writes a session and all of its fields atomically.
	CreateSession(ctx context.Context, s *models.Session, fields []models.Field) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// ListFields returns the session's fields ordered by Position.
	ListFields(ctx context.Context, sessionID string) ([]models.Field, error)
	// SaveAnswer writes one field's value and advances the session's
	// counter and status in a single transaction. The new counter and
	// status are derived from the stored rows, so concurrent writers from
	// other processes are never lost; s only supplies the ID and UpdatedAt
	// and receives the committed FilledFields and Status. An expired
	// session is rejected with *models.ValidationError.
	SaveAnswer(ctx context.Context, s *models.Session, f models.Field) error
	// SetOutput records the blob name of the synthesized document.
	SetOutput(ctx context.Context, sessionID, outputPath string) error
	// ExpireSessions marks active sessions last updated before the cutoff
	// as expired and returns how many were changed.
	ExpireSessions(ctx context.Context, before time.Time) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

const expiredReason = "session has expired"

// advance applies one answer to the stored counters. The counter moves only
// on an unfilled to filled transition and a completed session stays completed.
func advance(stored models.Session, wasFilled, nowFilled bool) (int, models.SessionStatus) {
	filled := stored.FilledFields
	if !wasFilled && nowFilled && filled < stored.TotalFields {
		filled++
	}
	st := stored.Status
	if st == models.StatusCompleted || (stored.TotalFields > 0 && filled >= stored.TotalFields) {
		st = models.StatusCompleted
	}
	return filled, st
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps the answer transactions serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	output_path   TEXT NOT NULL DEFAULT '',
	total_fields  INTEGER NOT NULL DEFAULT 0,
	filled_fields INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fields (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	choices    TEXT,
	position   INTEGER NOT NULL,
	value      TEXT NOT NULL DEFAULT '',
	is_filled  INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (session_id, name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_fields_session_position ON fields(session_id, position);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session, fields []models.Field) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create session")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, filename, file_path, output_path, total_fields, filled_fields, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Filename, sess.FilePath, sess.OutputPath, sess.TotalFields, sess.FilledFields,
		string(sess.Status), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
	}

	for _, f := range fields {
		choices, err := marshalChoices(f.Choices)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fields (session_id, name, kind, choices, position, value, is_filled, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, f.Name, string(f.Kind), choices, f.Position, f.Value, f.IsFilled, f.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert field %s", f.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit create session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, file_path, output_path, total_fields, filled_fields, status, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)

	var sess models.Session
	var status string
	err := row.Scan(&sess.ID, &sess.Filename, &sess.FilePath, &sess.OutputPath,
		&sess.TotalFields, &sess.FilledFields, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scan session %s", id)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

func (s *SQLiteStore) ListFields(ctx context.Context, sessionID string) ([]models.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, choices, position, value, is_filled, updated_at
		 FROM fields WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fields")
	}
	defer rows.Close()

	var fields []models.Field
	for rows.Next() {
		f := models.Field{SessionID: sessionID}
		var kind string
		var choices sql.NullString
		if err := rows.Scan(&f.Name, &kind, &choices, &f.Position, &f.Value, &f.IsFilled, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field")
		}
		f.Kind = models.FieldKind(kind)
		if choices.Valid && choices.String != "" {
			if err := json.Unmarshal([]byte(choices.String), &f.Choices); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal choices")
			}
		}
		fields = append(fields, f)
	}
	return fields, eris.Wrap(rows.Err(), "sqlite: list fields iterate")
}

func (s *SQLiteStore) SaveAnswer(ctx context.Context, sess *models.Session, f models.Field) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save answer")
	}
	defer tx.Rollback() //nolint:errcheck

	inc := 0
	if f.IsFilled {
		inc = 1
	}
	// Writing the session row first takes the write lock before anything
	// is read, so the counter is computed from committed state.
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions
		 SET filled_fields = MIN(total_fields, filled_fields + CASE
		         WHEN ? = 1 AND EXISTS (SELECT 1 FROM fields WHERE session_id = sessions.id AND name = ? AND is_filled = 0)
		         THEN 1 ELSE 0 END),
		     updated_at = ?
		 WHERE id = ? AND status != ?`,
		inc, f.Name, sess.UpdatedAt.UTC(), sess.ID, string(models.StatusExpired),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	} else if n == 0 {
		return s.rejectAnswer(ctx, tx, sess.ID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions
		 SET status = CASE WHEN status = ? OR (total_fields > 0 AND filled_fields >= total_fields) THEN ? ELSE status END
		 WHERE id = ?`,
		string(models.StatusCompleted), string(models.StatusCompleted), sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", sess.ID)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE fields SET value = ?, is_filled = ?, updated_at = ? WHERE session_id = ? AND name = ?`,
		f.Value, f.IsFilled, f.UpdatedAt.UTC(), sess.ID, f.Name,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update field %s", f.Name)
	}
	if err := checkRowsAffected(res, "field", f.Name); err != nil {
		return err
	}

	var filled int
	var st string
	if err := tx.QueryRowContext(ctx,
		`SELECT filled_fields, status FROM sessions WHERE id = ?`, sess.ID,
	).Scan(&filled, &st); err != nil {
		return eris.Wrapf(err, "sqlite: reload session %s", sess.ID)
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save answer")
	}
	sess.FilledFields = filled
	sess.Status = models.SessionStatus(st)
	return nil
}

// rejectAnswer explains why the guarded session update matched no row.
func (s *SQLiteStore) rejectAnswer(ctx context.Context, tx *sql.Tx, id string) error {
	var st string
	err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load session %s", id)
	}
	return &models.ValidationError{Reason: expiredReason}
}

func (s *SQLiteStore) SetOutput(ctx context.Context, sessionID, outputPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET output_path = ?, updated_at = ? WHERE id = ?`,
		outputPath, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set output %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) ExpireSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(models.StatusExpired), time.Now().UTC(), string(models.StatusActive), before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return int(n), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return &models.NotFoundError{Resource: entity, ID: id}
	}
	return nil
}

func marshalChoices(choices []string) (any, error) {
	if len(choices) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(choices)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal choices")
	}
	return string(b), nil
}

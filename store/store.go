// Package store persists sessions, their last loaded dataset and their chat
// transcripts in SQLite.
//
// Usage:
//
//	st, err := store.Open(ctx, "vizon.db", logger)
//	defer st.Close()
//
// The path ":memory:" opens a private in-memory database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/helpers"
	"github.com/spektr-org/vizon/schema"
)

// ErrNotFound is returned when a session or dataset does not exist.
var ErrNotFound = errors.New("store: not found")

const pragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS datasets (
	session_id  TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	source      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	columns     TEXT NOT NULL,
	csv         BLOB NOT NULL,
	loaded_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	ordinal    INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	at         INTEGER NOT NULL,
	PRIMARY KEY (session_id, ordinal)
);
`

// Store wraps the database handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}

	logger.Info("store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── sessions ───────────────────────────────────────────────

// SessionInfo is one row of the sessions table.
type SessionInfo struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	HasDataset bool
}

// CreateSession inserts a session. Creating an existing id is a no-op.
func (s *Store) CreateSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, at.UnixNano(), at.UnixNano())
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session with its dataset and messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Sessions lists sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.updated_at, d.session_id IS NOT NULL
		FROM sessions s LEFT JOIN datasets d ON d.session_id = s.id
		ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var created, updated int64
		if err := rows.Scan(&info.ID, &created, &updated, &info.HasDataset); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		info.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// ── datasets ───────────────────────────────────────────────

// columnMeta keeps what a CSV round trip cannot recover.
type columnMeta struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
	SortHint    string `json:"sortHint,omitempty"`
	Parent      string `json:"parent,omitempty"`
}

// SaveDataset replaces the session's dataset and clears its transcript in
// one transaction, mirroring a successful load.
func (s *Store) SaveDataset(ctx context.Context, id string, t *schema.Table, at time.Time) error {
	csv, err := helpers.CSVBytes(t)
	if err != nil {
		return fmt.Errorf("store: encode dataset: %w", err)
	}
	metas := make([]columnMeta, len(t.Columns))
	for i, c := range t.Columns {
		metas[i] = columnMeta{
			Name:        c.Name,
			DisplayName: c.DisplayName,
			Description: c.Description,
			Unit:        c.Unit,
			SortHint:    c.SortHint,
			Parent:      c.Profile.Parent,
		}
	}
	cols, err := json.Marshal(metas)
	if err != nil {
		return fmt.Errorf("store: encode columns: %w", err)
	}

	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, id, at); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO datasets (session_id, name, source, description, columns, csv, loaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				name = excluded.name, source = excluded.source, description = excluded.description,
				columns = excluded.columns, csv = excluded.csv, loaded_at = excluded.loaded_at`,
			id, t.Name, t.Source, t.Description, string(cols), csv, at.UnixNano()); err != nil {
			return fmt.Errorf("store: save dataset %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("store: clear messages %s: %w", id, err)
		}
		return nil
	})
}

// Dataset reloads the session's dataset. The CSV is normalized again, so
// types and roles come out as they did on the original load.
func (s *Store) Dataset(ctx context.Context, id string) (*schema.Table, error) {
	var name, source, description, cols string
	var csv []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT name, source, description, columns, csv FROM datasets WHERE session_id = ?`, id,
	).Scan(&name, &source, &description, &cols, &csv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load dataset %s: %w", id, err)
	}

	t, err := helpers.ReadCSV(csv, source)
	if err != nil {
		return nil, fmt.Errorf("store: decode dataset %s: %w", id, err)
	}
	t.Name = name
	t.Source = source
	t.Description = description

	var metas []columnMeta
	if err := json.Unmarshal([]byte(cols), &metas); err != nil {
		return nil, fmt.Errorf("store: decode columns %s: %w", id, err)
	}
	for _, m := range metas {
		c := t.Column(m.Name)
		if c == nil {
			continue
		}
		c.DisplayName = m.DisplayName
		c.Description = m.Description
		c.Unit = m.Unit
		c.SortHint = m.SortHint
		if m.Parent != "" {
			c.Profile.Parent = m.Parent
		}
	}
	return t, nil
}

// ── messages ───────────────────────────────────────────────

// AppendMessages adds msgs after the session's existing transcript.
func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...assistant.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM messages WHERE session_id = ?`, id,
		).Scan(&next); err != nil {
			return fmt.Errorf("store: next ordinal %s: %w", id, err)
		}
		last := msgs[len(msgs)-1].At
		if err := touch(ctx, tx, id, last); err != nil {
			return err
		}
		for i, m := range msgs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (session_id, ordinal, role, content, at) VALUES (?, ?, ?, ?, ?)`,
				id, next+i, m.Role, m.Content, m.At.UnixNano()); err != nil {
				return fmt.Errorf("store: append message %s: %w", id, err)
			}
		}
		return nil
	})
}

// Messages returns the session's transcript in order.
func (s *Store) Messages(ctx context.Context, id string) ([]assistant.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, at FROM messages WHERE session_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("store: messages %s: %w", id, err)
	}
	defer rows.Close()

	var out []assistant.Message
	for rows.Next() {
		var m assistant.Message
		var at int64
		if err := rows.Scan(&m.Role, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.At = time.Unix(0, at).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── helpers ────────────────────────────────────────────────

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// touch bumps updated_at, failing with ErrNotFound for unknown sessions.
func touch(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("store: touch session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

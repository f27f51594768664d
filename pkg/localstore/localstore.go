// Package localstore keeps the client's signed-in user and build history in a
// SQLite file under the user's home directory.
package localstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/vango-go/nava/pkg/core/types"
)

// FileName is the database file created inside the store directory.
const FileName = "nava.db"

const schemaVersion = 1

// ErrNotFound is returned when a project id does not exist.
var ErrNotFound = errors.New("localstore: not found")

// User is the locally remembered session.
type User struct {
	ID         string
	Email      string
	Name       string
	Token      string
	SignedInAt time.Time
}

// Store is a SQLite-backed local store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	s, err := open(path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return s, nil
}

// OpenMemory opens a private in-memory store.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
	  slot         INTEGER PRIMARY KEY CHECK (slot = 1),
	  id           TEXT NOT NULL,
	  email        TEXT NOT NULL,
	  name         TEXT,
	  token        TEXT,
	  signed_in_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
	  id          TEXT PRIMARY KEY,
	  title       TEXT NOT NULL,
	  status      TEXT NOT NULL,
	  difficulty  TEXT,
	  thumbnail   TEXT,
	  created_at  INTEGER NOT NULL,
	  updated_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migration 1 failed: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func (s *Store) newID(t time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SaveUser remembers u as the signed-in user, replacing any previous one.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return errors.New("localstore: user id is required")
	}
	at := u.SignedInAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (slot, id, email, name, token, signed_in_at) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET id = excluded.id, email = excluded.email, name = excluded.name,
		  token = excluded.token, signed_in_at = excluded.signed_in_at`,
		u.ID, u.Email, u.Name, u.Token, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUser returns the signed-in user, or nil when nobody is signed in.
func (s *Store) GetUser(ctx context.Context) (*User, error) {
	var (
		u           User
		name, token sql.NullString
		at          int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, name, token, signed_in_at FROM users WHERE slot = 1`).
		Scan(&u.ID, &u.Email, &name, &token, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Name, u.Token = name.String, token.String
	u.SignedInAt = time.UnixMilli(at)
	return &u, nil
}

// Logout forgets the signed-in user. History is kept.
func (s *Store) Logout(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// SaveProject records plan as an in-progress project.
func (s *Store) SaveProject(ctx context.Context, plan *types.Plan, thumbnail *types.Image) (types.ProjectHistory, error) {
	if plan == nil {
		return types.ProjectHistory{}, errors.New("localstore: plan is required")
	}
	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return types.ProjectHistory{}, fmt.Errorf("generate id: %w", err)
	}
	h := types.ProjectHistory{
		ID:         id,
		Title:      plan.Title,
		Date:       time.UnixMilli(now.UnixMilli()),
		Status:     types.ProjectInProgress,
		Difficulty: plan.Difficulty,
	}
	if thumbnail != nil && !thumbnail.IsZero() {
		h.Thumbnail = thumbnail.DataURI()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, status, difficulty, thumbnail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Title, string(h.Status), string(h.Difficulty), h.Thumbnail, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return types.ProjectHistory{}, fmt.Errorf("save project: %w", err)
	}
	return h, nil
}

// MarkComplete sets a project's status to Completed.
func (s *Store) MarkComplete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		string(types.ProjectCompleted), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetHistory lists projects newest first.
func (s *Store) GetHistory(ctx context.Context) ([]types.ProjectHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, difficulty, thumbnail, created_at
		FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []types.ProjectHistory
	for rows.Next() {
		var (
			h           types.ProjectHistory
			status      string
			diff, thumb sql.NullString
			created     int64
		)
		if err := rows.Scan(&h.ID, &h.Title, &status, &diff, &thumb, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		h.Status = types.ProjectStatus(status)
		h.Difficulty = types.Difficulty(diff.String)
		h.Thumbnail = thumb.String
		h.Date = time.UnixMilli(created)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return out, nil
}

// Package profiles persists the browsing-identity records the engine acts
// on behalf of: one row per resource id, with the login flag the core writes
// back and the last-used timestamp read for target defaults.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrProfileNotFound is returned when no profile matches the given id.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is one persisted browsing identity.
type Profile struct {
	ID         string
	Name       string
	IsLoggedIn bool
	LastUsedAt time.Time
	CreatedAt  time.Time
}

// Store persists profiles in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the profile database at the given
// path.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS profiles (
		profile_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_logged_in INTEGER NOT NULL DEFAULT 0,
		last_used_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the profile or updates its name if it already exists.
func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (profile_id, name, is_logged_in, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id) DO UPDATE SET name = excluded.name`,
		p.ID, p.Name, boolToInt(p.IsLoggedIn), nullableTime(p.LastUsedAt), p.CreatedAt)
	return err
}

// Get retrieves a profile by id.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT profile_id, name, is_logged_in, last_used_at, created_at FROM profiles WHERE profile_id = ?`, id)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, err
}

// List returns all profiles, most recently used first.
func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, name, is_logged_in, last_used_at, created_at
		 FROM profiles ORDER BY last_used_at DESC NULLS LAST, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SetLoggedIn writes back the login flag for a profile. This is the only
// field the automation core mutates.
func (s *Store) SetLoggedIn(ctx context.Context, id string, loggedIn bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET is_logged_in = ? WHERE profile_id = ?`, boolToInt(loggedIn), id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

// Touch updates the profile's last-used timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET last_used_at = ? WHERE profile_id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

// Delete removes a profile.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE profile_id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var loggedIn int
	var lastUsed sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &loggedIn, &lastUsed, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.IsLoggedIn = loggedIn != 0
	if lastUsed.Valid {
		p.LastUsedAt = lastUsed.Time
	}
	return &p, nil
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

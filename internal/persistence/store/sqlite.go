// Package store persists game entities in SQLite. Each entity is one JSON
// document row keyed by (game, id) with its foreign keys as columns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	apperrors "stellarforge.ai/internal/platform/errors"
)

type Store struct {
	db *sqlx.DB
}

type GameRow struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Period     uint64 `db:"period" json:"period"`
	NextJobSeq uint64 `db:"next_job_seq" json:"next_job_seq"`
	CreatedAt  string `db:"created_at" json:"created_at"`
	UpdatedAt  string `db:"updated_at" json:"updated_at"`
}

// entityRow binds every entity table; each statement uses only the
// columns its table has.
type entityRow struct {
	Game      string `db:"game"`
	ID        string `db:"id"`
	Empire    string `db:"empire"`
	Owner     string `db:"owner"`
	Fleet     string `db:"fleet"`
	Location  string `db:"location"`
	Seq       uint64 `db:"seq"`
	Completed bool   `db:"completed"`
	Doc       string `db:"doc"`
}

func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			period INTEGER NOT NULL,
			next_job_seq INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS empires (
			game TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (game, id)
		);`,
		`CREATE TABLE IF NOT EXISTS systems (
			game TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			owner TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (game, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_systems_owner ON systems(game, owner);`,
		`CREATE TABLE IF NOT EXISTS fleets (
			game TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			empire TEXT NOT NULL,
			location TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (game, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fleets_empire ON fleets(game, empire);`,
		`CREATE TABLE IF NOT EXISTS ships (
			game TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			empire TEXT NOT NULL,
			fleet TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (game, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ships_fleet ON ships(game, fleet);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			game TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			empire TEXT NOT NULL,
			seq INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (game, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_empire ON jobs(game, empire, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// CreateGame inserts the game row if it does not exist yet. An existing
// row keeps its period.
func (s *Store) CreateGame(ctx context.Context, id, name string) (GameRow, error) {
	ts := now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO games (id, name, period, next_job_seq, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?) ON CONFLICT(id) DO NOTHING`, id, name, ts, ts)
	if err != nil {
		return GameRow{}, fmt.Errorf("create game %s: %w", id, err)
	}
	return s.Game(ctx, id)
}

func (s *Store) Game(ctx context.Context, id string) (GameRow, error) {
	var g GameRow
	err := s.db.GetContext(ctx, &g, "SELECT * FROM games WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return g, apperrors.NotFound("game %s", id)
	}
	return g, err
}

func (s *Store) Games(ctx context.Context) ([]GameRow, error) {
	var out []GameRow
	if err := s.db.SelectContext(ctx, &out, "SELECT * FROM games ORDER BY id"); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGame removes the game and, through the foreign keys, every entity
// it owns.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("game %s", id)
	}
	return nil
}

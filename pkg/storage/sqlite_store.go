package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/small-frappuccino/plana/pkg/models"
)

// Store wraps an embedded SQLite database holding write-backs that could not
// reach the backend before the process stopped: dirty user records and the
// ids of guilds whose snapshot was still pending. It uses modernc.org/sqlite
// for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ready() error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return nil
}

// SavePendingUsers upserts user snapshots into the spool.
func (s *Store) SavePendingUsers(ctx context.Context, users []*models.User) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pending_users (guild_id, user_id, payload, spooled_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(guild_id, user_id) DO UPDATE SET
           payload=excluded.payload,
           spooled_at=excluded.spooled_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, u := range users {
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", u.UserID, err)
		}
		if _, err := stmt.ExecContext(ctx, u.GuildID.String(), u.UserID.String(), string(payload), now); err != nil {
			return fmt.Errorf("spool user %s: %w", u.UserID, err)
		}
	}
	return tx.Commit()
}

// LoadPendingUsers returns every spooled user snapshot.
func (s *Store) LoadPendingUsers(ctx context.Context) ([]*models.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM pending_users ORDER BY guild_id, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var u models.User
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, fmt.Errorf("decode spooled user: %w", err)
		}
		if u.Data == nil {
			u.Data = map[string]json.RawMessage{}
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// ClearPendingUsers empties the user spool.
func (s *Store) ClearPendingUsers(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_users`)
	return err
}

// SavePendingGuilds records guild ids whose snapshot still has to be pushed.
func (s *Store) SavePendingGuilds(ctx context.Context, guildIDs []models.Snowflake) error {
	if err := s.ready(); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, id := range guildIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO pending_guilds (guild_id, spooled_at) VALUES (?, ?)
             ON CONFLICT(guild_id) DO UPDATE SET spooled_at=excluded.spooled_at`,
			id.String(), now,
		); err != nil {
			return fmt.Errorf("spool guild %s: %w", id, err)
		}
	}
	return nil
}

// LoadPendingGuilds returns the spooled guild ids.
func (s *Store) LoadPendingGuilds(ctx context.Context) ([]models.Snowflake, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM pending_guilds ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Snowflake
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := models.ParseSnowflake(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClearPendingGuilds empties the guild spool.
func (s *Store) ClearPendingGuilds(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_guilds`)
	return err
}

func ensureSchema(db *sql.DB) error {
	const createPendingUsers = `
CREATE TABLE IF NOT EXISTS pending_users (
  guild_id   TEXT NOT NULL,
  user_id    TEXT NOT NULL,
  payload    TEXT NOT NULL,
  spooled_at TIMESTAMP NOT NULL,
  PRIMARY KEY (guild_id, user_id)
);`

	const createPendingGuilds = `
CREATE TABLE IF NOT EXISTS pending_guilds (
  guild_id   TEXT PRIMARY KEY,
  spooled_at TIMESTAMP NOT NULL
);`

	for _, stmt := range []string{createPendingUsers, createPendingGuilds} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Package sqlite provides a SQLite-backed store for sessions, terms and users.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage"
	"github.com/kiliankoe/forcerank/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const globalScope = ""

// Store persists each session as a JSON document guarded by a revision counter.
type Store struct {
	sqlDB   *sql.DB
	retries int
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection keeps SQLite from returning SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, retries: storage.DefaultTxRetries}, nil
}

// WithRetries sets the optimistic transaction retry budget.
func (s *Store) WithRetries(n int) *Store {
	if n > 0 {
		s.retries = n
	}
	return s
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func encodeSession(sess *game.Session) (string, error) {
	sess.Normalize()
	b, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

func decodeSession(data string) (*game.Session, error) {
	out := &game.Session{}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	out.Normalize()
	return out, nil
}

func (s *Store) readSession(ctx context.Context, code string) (*game.Session, int64, error) {
	var (
		data     string
		revision int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data, revision FROM sessions WHERE code = ?`, code,
	).Scan(&data, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, storage.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get session: %w", err)
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, 0, err
	}
	return sess, revision, nil
}

func (s *Store) GetSession(ctx context.Context, code string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, _, err := s.readSession(ctx, code)
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, sess *game.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(sess.Code) == "" {
		return fmt.Errorf("session code is required")
	}
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (code, revision, data, updated_at) VALUES (?, 1, ?, ?)`,
		sess.Code, data, toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, code string, fn func(*game.Session) error) (*game.Session, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sess, revision, err := s.readSession(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := fn(sess); err != nil {
			return nil, err
		}
		data, err := encodeSession(sess)
		if err != nil {
			return nil, err
		}
		res, err := s.sqlDB.ExecContext(ctx,
			`UPDATE sessions SET data = ?, revision = revision + 1, updated_at = ?
			 WHERE code = ? AND revision = ?`,
			data, toMillis(time.Now()), code, revision,
		)
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		if n == 1 {
			return sess, nil
		}
	}
	return nil, storage.ErrConflict
}

func (s *Store) SetRanking(ctx context.Context, code, playerID string, ranking []game.RankEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ranking == nil {
		ranking = []game.RankEntry{}
	}
	b, err := json.Marshal(ranking)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions
		 SET data = json_set(data, '$.rankings.' || json_quote(?), json(?)),
		     revision = revision + 1,
		     updated_at = ?
		 WHERE code = ?`,
		playerID, string(b), toMillis(time.Now()), code,
	)
	if err != nil {
		return fmt.Errorf("set ranking: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("set ranking: %w", err)
	} else if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	} else if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) readTerms(ctx context.Context, scope string) ([]game.Term, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM terms WHERE scope = ?`, scope).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get terms: %w", err)
	}
	var out []game.Term
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decode terms: %w", err)
	}
	return out, nil
}

func (s *Store) writeTerms(ctx context.Context, scope string, terms []game.Term) error {
	if terms == nil {
		terms = []game.Term{}
	}
	b, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("encode terms: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO terms (scope, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		scope, string(b), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put terms: %w", err)
	}
	return nil
}

func (s *Store) Terms(ctx context.Context) ([]game.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.readTerms(ctx, globalScope)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

func (s *Store) SetTerms(ctx context.Context, terms []game.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeTerms(ctx, globalScope, terms)
}

func (s *Store) UserTerms(ctx context.Context, userID string) ([]game.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == globalScope {
		return nil, storage.ErrNotFound
	}
	return s.readTerms(ctx, userID)
}

func (s *Store) SetUserTerms(ctx context.Context, userID string, terms []game.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == globalScope {
		return fmt.Errorf("user id is required")
	}
	return s.writeTerms(ctx, userID, terms)
}

func (s *Store) PutUser(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, toMillis(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("put user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put user: %w", err)
	}
	return n == 1, nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, userID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return true, nil
}

func (s *Store) LogClick(ctx context.Context, c storage.Click) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO button_clicks (id, user_id, button_id, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.ButtonID, toMillis(c.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("log click: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

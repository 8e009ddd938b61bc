// Package memory provides an in-process store for single-node deployments and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage"
)

type record struct {
	revision int64
	data     []byte
}

// Store keeps sessions as encoded snapshots so callers never share memory with it.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]record
	terms     []game.Term
	userTerms map[string][]game.Term
	users     map[string]bool
	clicks    []storage.Click
	retries   int

	// beforeCommit runs between a transaction's read and its commit; tests use it
	// to force interleavings.
	beforeCommit func(code string)
}

func New() *Store {
	return &Store{
		sessions:  make(map[string]record),
		userTerms: make(map[string][]game.Term),
		users:     make(map[string]bool),
		retries:   storage.DefaultTxRetries,
	}
}

// WithRetries sets the optimistic transaction retry budget.
func (s *Store) WithRetries(n int) *Store {
	if n > 0 {
		s.retries = n
	}
	return s
}

func (s *Store) Close() error { return nil }

func encode(sess *game.Session) ([]byte, error) {
	sess.Normalize()
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

func decode(b []byte) (*game.Session, error) {
	out := &game.Session{}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	out.Normalize()
	return out, nil
}

func (s *Store) GetSession(ctx context.Context, code string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rec, ok := s.sessions[code]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return decode(rec.data)
}

func (s *Store) CreateSession(ctx context.Context, sess *game.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(sess.Code) == "" {
		return fmt.Errorf("session code is required")
	}
	b, err := encode(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.Code]; ok {
		return storage.ErrAlreadyExists
	}
	s.sessions[sess.Code] = record{revision: 1, data: b}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, code string, fn func(*game.Session) error) (*game.Session, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.RLock()
		rec, ok := s.sessions[code]
		hook := s.beforeCommit
		s.mu.RUnlock()
		if !ok {
			return nil, storage.ErrNotFound
		}
		sess, err := decode(rec.data)
		if err != nil {
			return nil, err
		}
		if err := fn(sess); err != nil {
			return nil, err
		}
		b, err := encode(sess)
		if err != nil {
			return nil, err
		}
		if hook != nil {
			hook(code)
		}

		s.mu.Lock()
		cur, ok := s.sessions[code]
		if !ok {
			s.mu.Unlock()
			return nil, storage.ErrNotFound
		}
		if cur.revision != rec.revision {
			s.mu.Unlock()
			continue
		}
		s.sessions[code] = record{revision: rec.revision + 1, data: b}
		s.mu.Unlock()
		return sess, nil
	}
	return nil, storage.ErrConflict
}

func (s *Store) SetRanking(ctx context.Context, code, playerID string, ranking []game.RankEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[code]
	if !ok {
		return storage.ErrNotFound
	}
	sess, err := decode(rec.data)
	if err != nil {
		return err
	}
	sess.Rankings[playerID] = append([]game.RankEntry(nil), ranking...)
	b, err := encode(sess)
	if err != nil {
		return err
	}
	s.sessions[code] = record{revision: rec.revision + 1, data: b}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[code]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sessions, code)
	return nil
}

func (s *Store) Terms(ctx context.Context) ([]game.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]game.Term(nil), s.terms...), nil
}

func (s *Store) SetTerms(ctx context.Context, terms []game.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms = append([]game.Term(nil), terms...)
	return nil
}

func (s *Store) UserTerms(ctx context.Context, userID string) ([]game.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.userTerms[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]game.Term(nil), t...), nil
}

func (s *Store) SetUserTerms(ctx context.Context, userID string, terms []game.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userTerms[userID] = append([]game.Term(nil), terms...)
	return nil
}

func (s *Store) PutUser(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[userID] {
		return false, nil
	}
	s.users[userID] = true
	return true, nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID], nil
}

func (s *Store) LogClick(ctx context.Context, c storage.Click) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, c)
	return nil
}

// Clicks returns the logged clicks in insertion order.
func (s *Store) Clicks() []storage.Click {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.Click(nil), s.clicks...)
}

// Package storage defines the persistence contracts shared by the store backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kiliankoe/forcerank/internal/game"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means an optimistic transaction lost every retry.
	ErrConflict = errors.New("transaction conflict")
)

// DefaultTxRetries bounds how often UpdateSession re-runs its mutation.
const DefaultTxRetries = 25

// SessionStore holds one GameSession record per game code.
type SessionStore interface {
	GetSession(ctx context.Context, code string) (*game.Session, error)
	CreateSession(ctx context.Context, s *game.Session) error
	// UpdateSession runs fn against a private copy of the current record and
	// commits only if nothing else wrote in between, re-running fn otherwise.
	// fn may run more than once; an error from fn aborts without writing.
	UpdateSession(ctx context.Context, code string, fn func(*game.Session) error) (*game.Session, error)
	// SetRanking overwrites one player's ranking without reading the record.
	SetRanking(ctx context.Context, code, playerID string, ranking []game.RankEntry) error
	DeleteSession(ctx context.Context, code string) error
}

// TermStore holds the global term list and per-user copies of it.
type TermStore interface {
	Terms(ctx context.Context) ([]game.Term, error)
	SetTerms(ctx context.Context, terms []game.Term) error
	UserTerms(ctx context.Context, userID string) ([]game.Term, error)
	SetUserTerms(ctx context.Context, userID string, terms []game.Term) error
}

// Click is one logged UI button press.
type Click struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ButtonID  string    `json:"buttonId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserStore interface {
	PutUser(ctx context.Context, userID string) (created bool, err error)
	UserExists(ctx context.Context, userID string) (bool, error)
	LogClick(ctx context.Context, c Click) error
}

// Store is everything a backend provides.
type Store interface {
	SessionStore
	TermStore
	UserStore
	Close() error
}

// Package engine runs the round lifecycle of Force Rank sessions: joining,
// voting, locking in, aggregating results and advancing rounds. Every
// read-then-write step goes through the store's optimistic transaction, and
// outbound messages are sent only after the transaction has committed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage"
	"github.com/kiliankoe/forcerank/internal/terms"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("game code already in use")
	ErrNotCreator        = errors.New("not creator")
	ErrInvalidState      = errors.New("invalid state for action")
	ErrUnknownPlayer     = errors.New("player not in game")
	ErrAlreadyLocked     = errors.New("ranking already locked")
	ErrCreatorCannotQuit = errors.New("creator cannot quit, end the game instead")
	ErrNotDemo           = errors.New("not a demo game")
	ErrBadRequest        = errors.New("bad request")
)

// Broadcaster delivers outbound messages. Rooms are game codes and
// participants are client-supplied user ids.
type Broadcaster interface {
	Join(room, participant string)
	Leave(room, participant string)
	CloseRoom(room string)
	SendToRoom(room, event string, payload any)
	SendToParticipant(participant, event string, payload any)
}

type Engine struct {
	sessions storage.SessionStore
	terms    storage.TermStore
	bc       Broadcaster
	tracer   trace.Tracer
	now      func() time.Time

	exportFile string
	demoCode   string
	demoNames  []string
}

type Option func(*Engine)

// WithExport appends a report of every completed round to path.
func WithExport(path string) Option {
	return func(e *Engine) { e.exportFile = path }
}

// WithDemo configures the shared demo session.
func WithDemo(code string, names []string) Option {
	return func(e *Engine) {
		e.demoCode = code
		e.demoNames = append([]string(nil), names...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(sessions storage.SessionStore, termStore storage.TermStore, bc Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		sessions:  sessions,
		terms:     termStore,
		bc:        bc,
		tracer:    otel.Tracer("github.com/kiliankoe/forcerank/internal/engine"),
		now:       func() time.Time { return time.Now().UTC() },
		demoCode:  "MARVEL_DEMO",
		demoNames: []string{"Iron Man", "Captain America", "Thor", "Black Widow", "Hulk", "Spider-Man", "Thanos", "Loki"},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DemoCode is the fixed code of the demo session.
func (e *Engine) DemoCode() string { return e.demoCode }

// Lookup returns the current record of a session.
func (e *Engine) Lookup(ctx context.Context, code string) (*game.Session, error) {
	sess, err := e.sessions.GetSession(ctx, code)
	return sess, storeErr(err)
}

func (e *Engine) span(ctx context.Context, op, code, userID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("game.code", code),
		attribute.String("user.id", userID),
	))
}

func storeErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	return err
}

// termsFor picks the list a creator's rounds cycle through: their personal
// copy, then the global list, then the built-in defaults.
func (e *Engine) termsFor(ctx context.Context, creator string) ([]game.Term, error) {
	if creator != "" && creator != game.SystemCreator {
		mine, err := e.terms.UserTerms(ctx, creator)
		if err == nil && len(mine) > 0 {
			return mine, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("user terms: %w", err)
		}
	}
	global, err := e.terms.Terms(ctx)
	if err != nil {
		return nil, fmt.Errorf("terms: %w", err)
	}
	if len(global) > 0 {
		return global, nil
	}
	return terms.Default, nil
}

// InitUser gives a user a personal copy of the global term list unless they
// already have one. It reports whether a copy was made.
func (e *Engine) InitUser(ctx context.Context, userID string) (bool, error) {
	ctx, span := e.span(ctx, "InitUser", "", userID)
	if strings.TrimSpace(userID) == "" {
		return false, finish(span, ErrBadRequest)
	}
	if _, err := e.terms.UserTerms(ctx, userID); err == nil {
		return false, finish(span, nil)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, finish(span, err)
	}
	list, err := e.termsFor(ctx, "")
	if err != nil {
		return false, finish(span, err)
	}
	if err := e.terms.SetUserTerms(ctx, userID, list); err != nil {
		return false, finish(span, err)
	}
	log.Info().Str("userId", userID).Int("terms", len(list)).Msg("default terms set for user")
	return true, finish(span, nil)
}

func (e *Engine) export(sess *game.Session, res game.Results) {
	if e.exportFile == "" {
		return
	}
	if err := game.ExportRound(sess, res, e.exportFile); err != nil {
		log.Error().Err(err).Str("code", sess.Code).Msg("failed to export round")
		return
	}
	log.Info().Str("code", sess.Code).Str("file", e.exportFile).Msg("exported round")
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

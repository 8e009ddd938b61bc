package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage"
	"github.com/rs/zerolog/log"
)

// JoinDemo adds userID to the shared demo session, creating it on first use.
// Demo sessions have no roster to wait for: every lock-in is answered with the
// running averages straight away.
func (e *Engine) JoinDemo(ctx context.Context, userID string) (*game.Session, error) {
	code := e.demoCode
	ctx, span := e.span(ctx, "JoinDemo", code, userID)
	if strings.TrimSpace(userID) == "" {
		return nil, finish(span, fmt.Errorf("%w: user id is required", ErrBadRequest))
	}

	if _, err := e.sessions.GetSession(ctx, code); errors.Is(err, storage.ErrNotFound) {
		list, err := e.termsFor(ctx, "")
		if err != nil {
			return nil, finish(span, err)
		}
		fresh := e.newDemoSession(list)
		if err := e.sessions.CreateSession(ctx, fresh); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, finish(span, err)
		}
		log.Info().Str("code", code).Int("terms", len(list)).Msg("demo game created")
	} else if err != nil {
		return nil, finish(span, err)
	}

	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		if !s.IsMember(userID) {
			s.Players[userID] = &game.Player{State: game.PlayerVoting, JoinedAt: e.now()}
			s.PlayersCount++
		}
		s.RankingTerm = game.TermAt(s.AllRankings, s.CurrentRankingIndex)
		return nil
	})
	if err != nil {
		return nil, finish(span, storeErr(err))
	}

	e.bc.Join(code, userID)
	e.bc.SendToParticipant(userID, EventJoinedDemo, DemoJoined{
		GameCode: code, Names: sess.Names, RankingTerm: sess.RankingTerm,
	})
	log.Info().Str("code", code).Str("userId", userID).Msg("joined demo")
	return sess, finish(span, nil)
}

func (e *Engine) newDemoSession(list []game.Term) *game.Session {
	if len(list) == 0 {
		list = []game.Term{game.FallbackTerm}
	}
	s := game.NewSession(e.demoCode, e.demoNames, game.SystemCreator, e.now())
	s.Players = map[string]*game.Player{}
	s.PlayersCount = 0
	s.State = game.StateVoting
	s.DemoMode = true
	s.AllRankings = append([]game.Term(nil), list...)
	s.CurrentRankingIndex = 0
	s.RankingTerm = list[0]
	s.TermVotes = map[string]int{}
	s.CumulativeScores = make(map[string]map[string]int, len(s.Names))
	for _, n := range s.Names {
		scores := make(map[string]int, len(list))
		for _, t := range list {
			scores[t.Key()] = 0
		}
		s.CumulativeScores[n] = scores
	}
	return s
}

// advanceDemo moves the demo to the next term, keeping the running scores.
func (e *Engine) advanceDemo(ctx context.Context, code, userID string) (*game.Session, error) {
	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		if !s.IsMember(userID) {
			return ErrUnknownPlayer
		}
		if len(s.AllRankings) == 0 {
			s.AllRankings = []game.Term{game.FallbackTerm}
		}
		s.CurrentRankingIndex = (s.CurrentRankingIndex + 1) % len(s.AllRankings)
		s.RankingTerm = s.AllRankings[s.CurrentRankingIndex]
		s.Rankings = map[string][]game.RankEntry{}
		s.Completed = 0
		s.SetAllPlayers(game.PlayerVoting)
		return nil
	})
	if err != nil {
		e.rejected("startNextRound", code, userID, err)
		return nil, storeErr(err)
	}
	e.bc.SendToRoom(code, EventStartNewRound, NewRound{Names: sess.Names, RankingTerm: sess.RankingTerm})
	log.Info().Str("code", code).Str("term", sess.RankingTerm.String()).Msg("demo advanced to next term")
	return sess, nil
}

// FinalDemoResults sends the all-term summary of a demo session to userID.
func (e *Engine) FinalDemoResults(ctx context.Context, code, userID string) (FinalDemoResults, error) {
	ctx, span := e.span(ctx, "FinalDemoResults", code, userID)
	sess, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return FinalDemoResults{}, finish(span, storeErr(err))
	}
	if !sess.DemoMode {
		return FinalDemoResults{}, finish(span, ErrNotDemo)
	}
	out := FinalDemoResults{FinalResults: sess.DemoTotals(), AllRankings: sess.AllRankings}
	e.bc.SendToParticipant(userID, EventDisplayFinalDemoResults, out)
	return out, finish(span, nil)
}

func demoResults(s *game.Session, userID string, ranking []game.RankEntry) DemoResults {
	next := s.RankingTerm
	last := true
	if n := len(s.AllRankings); n > 0 {
		next = s.AllRankings[(s.CurrentRankingIndex+1)%n]
		last = s.CurrentRankingIndex == n-1
	}
	return DemoResults{
		CurrentRankingResults: s.DemoAverages(),
		PlayerVotes:           map[string][]game.RankEntry{userID: ranking},
		RankingTerm:           s.RankingTerm,
		NextRankingTerm:       next,
		IsLastRanking:         last,
		TotalVotes:            s.TotalVotes,
	}
}

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

const codeLength = 5

// CreateSession stores a new waiting session owned by creator. An empty code
// is replaced by a generated one.
func (e *Engine) CreateSession(ctx context.Context, code string, names []string, creator string) (*game.Session, error) {
	code = strings.TrimSpace(code)
	ctx, span := e.span(ctx, "CreateSession", code, creator)
	if strings.TrimSpace(creator) == "" {
		return nil, finish(span, fmt.Errorf("%w: user id is required", ErrBadRequest))
	}
	clean, err := game.CleanNames(names)
	if err != nil {
		return nil, finish(span, err)
	}
	if code == e.demoCode {
		return nil, finish(span, ErrSessionExists)
	}

	generated := code == ""
	var sess *game.Session
	for attempt := 0; ; attempt++ {
		if generated {
			code = randomCode(codeLength)
		}
		sess = game.NewSession(code, clean, creator, e.now())
		err = e.sessions.CreateSession(ctx, sess)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			if generated && attempt < 10 {
				continue
			}
			return nil, finish(span, ErrSessionExists)
		}
		return nil, finish(span, err)
	}

	e.bc.Join(code, creator)
	e.bc.SendToParticipant(creator, EventJoinedWaitingRoom, WaitingRoom{
		GameCode: code, Names: sess.Names, PlayersCount: sess.PlayersCount, IsCreator: true,
	})
	e.bc.SendToRoom(code, EventGameJoined, RoomUpdate{
		GameCode: code, Names: sess.Names, PlayersCount: sess.PlayersCount,
	})
	log.Info().Str("code", code).Str("creator", creator).Int("names", len(clean)).Msg("game created")
	return sess, finish(span, nil)
}

// JoinSession adds playerID to the session, or resyncs them if already a member.
func (e *Engine) JoinSession(ctx context.Context, code, playerID string) (*game.Session, error) {
	ctx, span := e.span(ctx, "JoinSession", code, playerID)
	if strings.TrimSpace(playerID) == "" {
		return nil, finish(span, fmt.Errorf("%w: user id is required", ErrBadRequest))
	}
	sess, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Str("code", code).Msg("join: game not found")
			e.notFound(playerID, code)
		}
		return nil, finish(span, storeErr(err))
	}

	added := false
	if !sess.IsMember(playerID) {
		sess, err = e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
			added = false
			if s.IsMember(playerID) {
				return nil
			}
			st := game.PlayerWaiting
			if s.State == game.StateVoting {
				st = game.PlayerVoting
				// Latecomers start from the identity order like everyone else did.
				s.Rankings[playerID] = game.IdentityRanking(s.Names)
			}
			s.Players[playerID] = &game.Player{State: st, JoinedAt: e.now()}
			s.PlayersCount++
			added = true
			return nil
		})
		if err != nil {
			return nil, finish(span, storeErr(err))
		}
	}

	e.bc.Join(code, playerID)
	if added {
		e.bc.SendToRoom(code, EventPlayerJoined, RoomUpdate{
			GameCode: code, Names: sess.Names, PlayersCount: sess.PlayersCount,
		})
		log.Info().Str("code", code).Str("userId", playerID).Int("players", sess.PlayersCount).Msg("player joined")
	}
	ev := e.snapshot(sess, playerID)
	e.bc.SendToParticipant(playerID, ev.Name, ev.Payload)
	return sess, finish(span, nil)
}

// CheckGameExists answers a client's resync probe.
func (e *Engine) CheckGameExists(ctx context.Context, code, userID string) (GameExists, error) {
	ctx, span := e.span(ctx, "CheckGameExists", code, userID)
	sess, err := e.sessions.GetSession(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		out := GameExists{Exists: false, GameCode: code, UserID: userID}
		e.bc.SendToParticipant(userID, EventGameExists, out)
		e.bc.SendToParticipant(userID, EventClearLocalStorage, nil)
		return out, finish(span, nil)
	}
	if err != nil {
		return GameExists{}, finish(span, err)
	}
	term := sess.RankingTerm
	if sess.State == game.StateWaiting {
		term = game.FallbackTerm
	}
	out := GameExists{
		Exists:          true,
		UserExists:      sess.IsMember(userID),
		GameCode:        code,
		UserID:          userID,
		State:           sess.State,
		Names:           sess.Names,
		PlayersCount:    sess.PlayersCount,
		RankingCriteria: &term,
	}
	e.bc.SendToParticipant(userID, EventGameExists, out)
	return out, finish(span, nil)
}

// StartRound moves a waiting session into its first voting round.
func (e *Engine) StartRound(ctx context.Context, code, userID string) (*game.Session, error) {
	ctx, span := e.span(ctx, "StartRound", code, userID)
	cur, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return nil, finish(span, storeErr(err))
	}
	list, err := e.termsFor(ctx, cur.Creator)
	if err != nil {
		return nil, finish(span, err)
	}

	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		if !s.IsCreator(userID) {
			return ErrNotCreator
		}
		if s.DemoMode || s.State != game.StateWaiting {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, s.State)
		}
		s.RankingTerm = game.TermAt(list, s.Version)
		for id, p := range s.Players {
			p.State = game.PlayerVoting
			s.Rankings[id] = game.IdentityRanking(s.Names)
		}
		s.Completed = 0
		s.GroupRanking = nil
		s.State = game.StateVoting
		return nil
	})
	if err != nil {
		e.rejected("startGame", code, userID, err)
		return nil, finish(span, storeErr(err))
	}

	e.bc.SendToRoom(code, EventStartGame, roundStarted(sess))
	log.Info().Str("code", code).Str("term", sess.RankingTerm.String()).Msg("round started")
	return sess, finish(span, nil)
}

// UpdateRanking stores a player's in-progress order. Last write wins.
func (e *Engine) UpdateRanking(ctx context.Context, code, userID string, ranking []game.RankEntry) error {
	ctx, span := e.span(ctx, "UpdateRanking", code, userID)
	if strings.TrimSpace(code) == "" {
		return finish(span, fmt.Errorf("%w: game code is required", ErrBadRequest))
	}
	sess, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return finish(span, storeErr(err))
	}
	if sess.State != game.StateVoting {
		return finish(span, fmt.Errorf("%w: game is %s", ErrInvalidState, sess.State))
	}
	p, ok := sess.Players[userID]
	if !ok {
		return finish(span, ErrUnknownPlayer)
	}
	if p.State == game.PlayerVoted && !sess.DemoMode {
		return finish(span, ErrAlreadyLocked)
	}
	if err := game.ValidateRanking(sess.Names, ranking); err != nil {
		return finish(span, err)
	}
	if err := e.sessions.SetRanking(ctx, code, userID, ranking); err != nil {
		return finish(span, storeErr(err))
	}
	log.Debug().Str("code", code).Str("userId", userID).Msg("rankings updated")
	return finish(span, nil)
}

// LockRanking records a player's final vote for the round. The lock that
// brings the locked count up to the player count completes the round, and
// exactly one lock can do so.
func (e *Engine) LockRanking(ctx context.Context, code, userID string, ranking []game.RankEntry) (*game.Session, error) {
	ctx, span := e.span(ctx, "LockRanking", code, userID)
	var (
		completed bool
		demo      bool
		res       game.Results
	)
	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		completed, demo, res = false, false, game.Results{}

		p, ok := s.Players[userID]
		if !ok {
			return ErrUnknownPlayer
		}
		if s.State != game.StateVoting {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, s.State)
		}
		if err := game.ValidateRanking(s.Names, ranking); err != nil {
			return err
		}
		if s.DemoMode {
			demo = true
			s.RecordDemoVote(ranking)
			s.Rankings[userID] = ranking
			return nil
		}
		if p.State == game.PlayerVoted {
			return ErrAlreadyLocked
		}
		p.State = game.PlayerVoted
		s.Completed++
		s.Rankings[userID] = ranking
		if s.Completed >= s.PlayersCount {
			res = e.complete(s)
			completed = true
		}
		return nil
	})
	if err != nil {
		e.rejected("lockRankings", code, userID, err)
		return nil, finish(span, storeErr(err))
	}

	switch {
	case demo:
		e.bc.SendToParticipant(userID, EventDisplayDemoResults, demoResults(sess, userID, ranking))
		log.Info().Str("code", code).Str("userId", userID).Int("totalVotes", sess.TotalVotes).Msg("demo vote recorded")
	case completed:
		e.bc.SendToRoom(code, EventDisplayFinalResults, finalResults(sess, res, ""))
		log.Info().Str("code", code).Int("players", sess.PlayersCount).Msg("round completed")
		e.export(sess, res)
	default:
		e.bc.SendToRoom(code, EventUpdateLockCount, LockCount{
			LockedCount: sess.Completed, PlayersCount: sess.PlayersCount, Creator: sess.Creator,
		})
		log.Info().Str("code", code).Int("locked", sess.Completed).Int("players", sess.PlayersCount).Msg("ranking locked")
	}
	return sess, finish(span, nil)
}

// complete closes the round inside a transaction and caches its results.
func (e *Engine) complete(s *game.Session) game.Results {
	res := game.CalculateFinalResults(s.Names, s.LockedVotes(), s.Creator)
	s.State = game.StateCompleted
	s.GroupRanking = res.GroupRanking
	return res
}

// AdvanceRound starts the next round with the next term. Demo sessions cycle
// their own term list instead.
func (e *Engine) AdvanceRound(ctx context.Context, code, userID string) (*game.Session, error) {
	ctx, span := e.span(ctx, "AdvanceRound", code, userID)
	cur, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return nil, finish(span, storeErr(err))
	}
	if cur.DemoMode {
		sess, err := e.advanceDemo(ctx, code, userID)
		return sess, finish(span, err)
	}
	list, err := e.termsFor(ctx, cur.Creator)
	if err != nil {
		return nil, finish(span, err)
	}

	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		if !s.IsCreator(userID) {
			return ErrNotCreator
		}
		if s.State == game.StateWaiting {
			return fmt.Errorf("%w: game has not started", ErrInvalidState)
		}
		s.Version++
		s.Completed = 0
		s.Rankings = map[string][]game.RankEntry{}
		s.SetAllPlayers(game.PlayerVoting)
		s.RankingTerm = game.TermAt(list, s.Version)
		s.GroupRanking = nil
		s.State = game.StateVoting
		return nil
	})
	if err != nil {
		e.rejected("nextRanking", code, userID, err)
		return nil, finish(span, storeErr(err))
	}

	e.bc.SendToRoom(code, EventStartNewRound, NewRound{Names: sess.Names, RankingTerm: sess.RankingTerm})
	log.Info().Str("code", code).Int("version", sess.Version).Str("term", sess.RankingTerm.String()).Msg("new round started")
	return sess, finish(span, nil)
}

// EndSession deletes the session when the creator asks for it.
func (e *Engine) EndSession(ctx context.Context, code, userID string) error {
	ctx, span := e.span(ctx, "EndSession", code, userID)
	sess, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return finish(span, storeErr(err))
	}
	if !sess.IsCreator(userID) {
		e.rejected("endGame", code, userID, ErrNotCreator)
		return finish(span, ErrNotCreator)
	}
	if err := e.sessions.DeleteSession(ctx, code); err != nil {
		return finish(span, storeErr(err))
	}
	e.bc.SendToRoom(code, EventGameEnded, GameEnded{GameCode: code})
	e.bc.CloseRoom(code)
	log.Info().Str("code", code).Msg("game ended and removed")
	return finish(span, nil)
}

// ForceComplete ends the current round with whatever has been locked in.
func (e *Engine) ForceComplete(ctx context.Context, code, userID string) (*game.Session, error) {
	ctx, span := e.span(ctx, "ForceComplete", code, userID)
	var res game.Results
	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		if !s.IsCreator(userID) {
			return ErrNotCreator
		}
		if s.DemoMode || s.State != game.StateVoting {
			return fmt.Errorf("%w: game is %s", ErrInvalidState, s.State)
		}
		res = e.complete(s)
		return nil
	})
	if err != nil {
		e.rejected("stopWaiting", code, userID, err)
		return nil, finish(span, storeErr(err))
	}

	e.bc.SendToRoom(code, EventDisplayFinalResults, finalResults(sess, res, userID))
	log.Info().Str("code", code).Int("locked", sess.Completed).Int("players", sess.PlayersCount).Msg("forced display of final results")
	e.export(sess, res)
	return sess, finish(span, nil)
}

// RejoinSession resends the view matching the session's current state. It
// never writes to the store.
func (e *Engine) RejoinSession(ctx context.Context, code, userID string) (Event, error) {
	ctx, span := e.span(ctx, "RejoinSession", code, userID)
	sess, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Str("code", code).Msg("rejoin: game not found")
			e.notFound(userID, code)
		}
		return Event{}, finish(span, storeErr(err))
	}
	e.bc.Join(code, userID)
	ev := e.snapshot(sess, userID)
	e.bc.SendToParticipant(userID, ev.Name, ev.Payload)
	return ev, finish(span, nil)
}

// QuitSession removes a player from a regular session. If everyone still in
// the round has locked in, the round completes.
func (e *Engine) QuitSession(ctx context.Context, code, userID string) (*game.Session, error) {
	ctx, span := e.span(ctx, "QuitSession", code, userID)
	cur, err := e.sessions.GetSession(ctx, code)
	if err != nil {
		return nil, finish(span, storeErr(err))
	}
	if cur.DemoMode {
		e.bc.Leave(code, userID)
		e.bc.SendToParticipant(userID, EventQuitGameSuccess, nil)
		return cur, finish(span, nil)
	}

	var (
		completed bool
		res       game.Results
	)
	sess, err := e.sessions.UpdateSession(ctx, code, func(s *game.Session) error {
		completed, res = false, game.Results{}
		if s.IsCreator(userID) {
			return ErrCreatorCannotQuit
		}
		p, ok := s.Players[userID]
		if !ok {
			return ErrUnknownPlayer
		}
		if p.State == game.PlayerVoted && s.Completed > 0 {
			s.Completed--
		}
		delete(s.Players, userID)
		delete(s.Rankings, userID)
		s.PlayersCount--
		if s.State == game.StateVoting && s.Completed >= s.PlayersCount {
			res = e.complete(s)
			completed = true
		}
		return nil
	})
	if err != nil {
		e.rejected("quitGame", code, userID, err)
		return nil, finish(span, storeErr(err))
	}

	e.bc.Leave(code, userID)
	e.bc.SendToParticipant(userID, EventQuitGameSuccess, nil)
	e.bc.SendToRoom(code, EventPlayerLeft, RoomUpdate{GameCode: code, Names: sess.Names, PlayersCount: sess.PlayersCount})
	log.Info().Str("code", code).Str("userId", userID).Int("players", sess.PlayersCount).Msg("player quit")
	switch {
	case completed:
		e.bc.SendToRoom(code, EventDisplayFinalResults, finalResults(sess, res, ""))
		e.export(sess, res)
	case sess.State == game.StateVoting:
		e.bc.SendToRoom(code, EventUpdateLockCount, LockCount{
			LockedCount: sess.Completed, PlayersCount: sess.PlayersCount, Creator: sess.Creator,
		})
	}
	return sess, finish(span, nil)
}

// snapshot builds the event a client needs to render the session right now.
func (e *Engine) snapshot(s *game.Session, userID string) Event {
	switch s.State {
	case game.StateVoting:
		return Event{Name: EventStartGame, Payload: roundStarted(s)}
	case game.StateCompleted:
		res := game.Results{GroupRanking: s.GroupRanking, PlayerVotes: s.LockedVotes()}
		if res.GroupRanking == nil {
			res = game.CalculateFinalResults(s.Names, res.PlayerVotes, s.Creator)
		}
		return Event{Name: EventDisplayFinalResults, Payload: finalResults(s, res, userID)}
	default:
		return Event{Name: EventJoinedWaitingRoom, Payload: WaitingRoom{
			GameCode: s.Code, Names: s.Names, PlayersCount: s.PlayersCount, IsCreator: s.IsCreator(userID),
		}}
	}
}

func (e *Engine) notFound(userID, code string) {
	e.bc.SendToParticipant(userID, EventGameNotFound, GameEnded{GameCode: code})
	e.bc.SendToParticipant(userID, EventClearLocalStorage, nil)
}

func (e *Engine) rejected(op, code, userID string, err error) {
	switch {
	case errors.Is(err, ErrNotCreator):
		log.Warn().Str("code", code).Str("userId", userID).Msgf("%s rejected: user is not the creator", op)
	case errors.Is(err, ErrUnknownPlayer):
		log.Warn().Str("code", code).Str("userId", userID).Msgf("%s rejected: player not found in game", op)
	case errors.Is(err, storage.ErrNotFound):
		log.Info().Str("code", code).Msgf("%s: game not found", op)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyLocked),
		errors.Is(err, game.ErrInvalidRanking), errors.Is(err, ErrCreatorCannotQuit):
		log.Warn().Str("code", code).Str("userId", userID).Err(err).Msgf("%s rejected", op)
	default:
		log.Error().Str("code", code).Str("userId", userID).Err(err).Msgf("%s failed", op)
	}
}

func roundStarted(s *game.Session) RoundStarted {
	return RoundStarted{
		GameCode: s.Code, Names: s.Names, RankingTerm: s.RankingTerm,
		PlayersCount: s.PlayersCount, Creator: s.Creator,
	}
}

// finalResults addresses the payload to viewer when set; room broadcasts leave
// it empty so each client compares creator against its own id.
func finalResults(s *game.Session, res game.Results, viewer string) FinalResults {
	return FinalResults{
		GroupRanking: res.GroupRanking,
		PlayerVotes:  res.PlayerVotes,
		RankingTerm:  s.RankingTerm,
		Creator:      s.Creator,
		IsCreator:    viewer != "" && s.IsCreator(viewer),
	}
}

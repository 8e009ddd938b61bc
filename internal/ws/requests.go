package ws

import (
	"errors"
	"strings"

	"github.com/kiliankoe/forcerank/internal/engine"
	"github.com/kiliankoe/forcerank/internal/game"
)

var (
	errMissingUser = errors.New("userId is required")
	errMissingCode = errors.New("gameCode is required")
	errMissingRank = errors.New("rankings are required")
)

type createGameReq struct {
	GameCode string   `json:"gameCode"`
	Names    []string `json:"names"`
	UserID   string   `json:"userId"`
}

func (r createGameReq) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errMissingUser
	}
	return nil
}

// gameReq is the payload shared by every per-game message.
type gameReq struct {
	GameCode string `json:"gameCode"`
	UserID   string `json:"userId"`
}

func (r gameReq) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errMissingUser
	}
	if strings.TrimSpace(r.GameCode) == "" {
		return errMissingCode
	}
	return nil
}

type rankingsReq struct {
	GameCode string           `json:"gameCode"`
	UserID   string           `json:"userId"`
	Rankings []game.RankEntry `json:"rankings"`
}

func (r rankingsReq) Validate() error {
	if err := (gameReq{GameCode: r.GameCode, UserID: r.UserID}).Validate(); err != nil {
		return err
	}
	if len(r.Rankings) == 0 {
		return errMissingRank
	}
	return nil
}

type userReq struct {
	UserID string `json:"userId"`
}

func (r userReq) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errMissingUser
	}
	return nil
}

// errorCode maps an engine failure onto the code sent in the "error" event.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, engine.ErrSessionExists):
		return "game_exists"
	case errors.Is(err, engine.ErrNotCreator):
		return "not_creator"
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrNotDemo),
		errors.Is(err, engine.ErrCreatorCannotQuit):
		return "invalid_state"
	case errors.Is(err, engine.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, engine.ErrAlreadyLocked):
		return "already_locked"
	case errors.Is(err, game.ErrInvalidRanking):
		return "invalid_ranking"
	case errors.Is(err, engine.ErrBadRequest), errors.Is(err, game.ErrTooFewNames),
		errors.Is(err, game.ErrDuplicateName), errors.Is(err, errMissingUser),
		errors.Is(err, errMissingCode), errors.Is(err, errMissingRank):
		return "bad_request"
	default:
		return "internal"
	}
}

func (r createGameReq) ids() (string, string) { return r.GameCode, r.UserID }
func (r gameReq) ids() (string, string)       { return r.GameCode, r.UserID }
func (r rankingsReq) ids() (string, string)   { return r.GameCode, r.UserID }
func (r userReq) ids() (string, string)       { return "", r.UserID }

package engine

import "github.com/kiliankoe/forcerank/internal/game"

// Outbound event names, as the browser client listens for them.
const (
	EventGameJoined              = "gameJoined"
	EventJoinedWaitingRoom       = "joinedWaitingRoom"
	EventPlayerJoined            = "playerJoined"
	EventPlayerLeft              = "playerLeft"
	EventStartGame               = "startGame"
	EventUpdateLockCount         = "updateLockCount"
	EventDisplayFinalResults     = "displayFinalResults"
	EventDisplayDemoResults      = "displayDemoResults"
	EventDisplayFinalDemoResults = "displayFinalDemoResults"
	EventStartNewRound           = "startNewRound"
	EventGameEnded               = "gameEnded"
	EventGameExists              = "gameExists"
	EventGameNotFound            = "gameNotFound"
	EventClearLocalStorage       = "clearLocalStorage"
	EventQuitGameSuccess         = "quitGameSuccess"
	EventJoinedDemo              = "joinedDemoMarvel"
)

// Event is one outbound message, as returned by the read-only resync operations.
type Event struct {
	Name    string
	Payload any
}

type RoomUpdate struct {
	GameCode     string   `json:"gameCode"`
	Names        []string `json:"names"`
	PlayersCount int      `json:"playersCount"`
}

type WaitingRoom struct {
	GameCode     string   `json:"gameCode"`
	Names        []string `json:"names"`
	PlayersCount int      `json:"playersCount"`
	IsCreator    bool     `json:"isCreator"`
}

type RoundStarted struct {
	GameCode     string    `json:"gameCode"`
	Names        []string  `json:"names"`
	RankingTerm  game.Term `json:"rankingTerm"`
	PlayersCount int       `json:"playersCount"`
	Creator      string    `json:"creator"`
}

type LockCount struct {
	LockedCount  int    `json:"lockedCount"`
	PlayersCount int    `json:"playersCount"`
	Creator      string `json:"creator"`
}

type FinalResults struct {
	GroupRanking []game.RankEntry            `json:"groupRanking"`
	PlayerVotes  map[string][]game.RankEntry `json:"playerVotes"`
	RankingTerm  game.Term                   `json:"rankingTerm"`
	Creator      string                      `json:"creator"`
	IsCreator    bool                        `json:"isCreator,omitempty"`
	DemoMode     bool                        `json:"demoMode"`
}

type NewRound struct {
	Names       []string  `json:"names"`
	RankingTerm game.Term `json:"rankingTerm"`
}

type GameEnded struct {
	GameCode string `json:"gameCode"`
}

type GameExists struct {
	Exists          bool       `json:"exists"`
	UserExists      bool       `json:"userExists"`
	GameCode        string     `json:"gameCode"`
	UserID          string     `json:"userId"`
	State           game.State `json:"state"`
	Names           []string   `json:"names,omitempty"`
	PlayersCount    int        `json:"playersCount,omitempty"`
	RankingCriteria *game.Term `json:"rankingCriteria,omitempty"`
}

type DemoJoined struct {
	GameCode    string    `json:"gameCode"`
	Names       []string  `json:"names"`
	RankingTerm game.Term `json:"rankingTerm"`
}

type DemoResults struct {
	CurrentRankingResults []game.ScoredName           `json:"currentRankingResults"`
	PlayerVotes           map[string][]game.RankEntry `json:"playerVotes"`
	RankingTerm           game.Term                   `json:"rankingTerm"`
	NextRankingTerm       game.Term                   `json:"nextRankingTerm"`
	IsLastRanking         bool                        `json:"isLastRanking"`
	TotalVotes            int                         `json:"totalVotes"`
}

type FinalDemoResults struct {
	FinalResults []game.TotalScoredName `json:"finalResults"`
	AllRankings  []game.Term            `json:"allRankings"`
}

package game

import (
	"encoding/json"
	"fmt"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateVoting    State = "voting"
	StateCompleted State = "completed"
)

type PlayerState string

const (
	PlayerWaiting PlayerState = "Waiting"
	PlayerVoting  PlayerState = "Voting"
	PlayerVoted   PlayerState = "Voted"
)

// SystemCreator owns demo sessions; no connected player ever has this id.
const SystemCreator = "SYSTEM"

// Term is one descriptive pair players rank against, e.g. most "Funny" vs most "Serious".
// On the wire and in storage it is the array [id, most, least].
type Term struct {
	ID    int    `mapstructure:"id"`
	Most  string `mapstructure:"most"`
	Least string `mapstructure:"least"`
}

// Key identifies the term inside demo score maps.
func (t Term) Key() string { return t.Most }

func (t Term) String() string { return fmt.Sprintf("%s / %s", t.Most, t.Least) }

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{t.ID, t.Most, t.Least})
}

func (t *Term) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("term: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("term: expected 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &t.ID); err != nil {
		return fmt.Errorf("term id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &t.Most); err != nil {
		return fmt.Errorf("term most: %w", err)
	}
	if err := json.Unmarshal(raw[2], &t.Least); err != nil {
		return fmt.Errorf("term least: %w", err)
	}
	return nil
}

// RankEntry places one name at a 1-based rank.
type RankEntry struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

type Player struct {
	State    PlayerState `json:"state"`
	JoinedAt time.Time   `json:"joinedAt"`
}

// Session is the persisted record of one game, keyed by its code.
type Session struct {
	Code         string                 `json:"code"`
	Names        []string               `json:"names"`
	Creator      string                 `json:"creator"`
	Players      map[string]*Player     `json:"players"`
	PlayersCount int                    `json:"playersCount"`
	Rankings     map[string][]RankEntry `json:"rankings"`
	Completed    int                    `json:"completed"`
	Version      int                    `json:"version"`
	RankingTerm  Term                   `json:"rankingTerm"`
	State        State                  `json:"state"`
	CreatedAt    time.Time              `json:"createdAt"`

	// GroupRanking caches the aggregated order of the last completed round.
	GroupRanking []RankEntry `json:"groupRanking,omitempty"`

	DemoMode            bool                      `json:"demoMode,omitempty"`
	AllRankings         []Term                    `json:"allRankings,omitempty"`
	CurrentRankingIndex int                       `json:"currentRankingIndex,omitempty"`
	CumulativeScores    map[string]map[string]int `json:"cumulativeScores,omitempty"`
	TermVotes           map[string]int            `json:"termVotes,omitempty"`
	TotalVotes          int                       `json:"totalVotes,omitempty"`
}

// NewSession returns a session in the waiting state with the creator as its only player.
func NewSession(code string, names []string, creator string, now time.Time) *Session {
	return &Session{
		Code:         code,
		Names:        append([]string(nil), names...),
		Creator:      creator,
		Players:      map[string]*Player{creator: {State: PlayerWaiting, JoinedAt: now}},
		PlayersCount: 1,
		Rankings:     map[string][]RankEntry{},
		State:        StateWaiting,
		CreatedAt:    now,
	}
}

// Normalize replaces nil maps so the record always serializes with empty objects.
func (s *Session) Normalize() {
	if s.Players == nil {
		s.Players = map[string]*Player{}
	}
	if s.Rankings == nil {
		s.Rankings = map[string][]RankEntry{}
	}
	if s.DemoMode {
		if s.CumulativeScores == nil {
			s.CumulativeScores = map[string]map[string]int{}
		}
		if s.TermVotes == nil {
			s.TermVotes = map[string]int{}
		}
	}
}

func (s *Session) IsMember(playerID string) bool {
	_, ok := s.Players[playerID]
	return ok
}

func (s *Session) IsCreator(playerID string) bool {
	return s.Creator == playerID
}

// LockedVotes returns the rankings of players who have locked in this round.
func (s *Session) LockedVotes() map[string][]RankEntry {
	out := make(map[string][]RankEntry)
	for id, p := range s.Players {
		if p.State != PlayerVoted {
			continue
		}
		if r, ok := s.Rankings[id]; ok {
			out[id] = r
		}
	}
	return out
}

// SetAllPlayers moves every player to the given state.
func (s *Session) SetAllPlayers(st PlayerState) {
	for _, p := range s.Players {
		p.State = st
	}
}

// TermAt selects the round's term for a round counter.
func TermAt(list []Term, n int) Term {
	if len(list) == 0 {
		return FallbackTerm
	}
	if n < 0 {
		n = -n
	}
	return list[n%len(list)]
}

// FallbackTerm is used when no term list is configured anywhere.
var FallbackTerm = Term{ID: 0, Most: "Top", Least: "Bottom"}

// Clone deep-copies a session through its JSON form.
func (s *Session) Clone() (*Session, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	out := &Session{}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	out.Normalize()
	return out, nil
}

package game

import (
	"sort"
)

// Results is the outcome of one round: the group order plus everyone's counted vote.
type Results struct {
	GroupRanking []RankEntry            `json:"groupRanking"`
	PlayerVotes  map[string][]RankEntry `json:"playerVotes"`
}

// CalculateFinalResults sums each name's ranks across votes and orders names
// ascending by that sum. Ties go to the creator's own ranking, then to the
// original order of names. Names nobody ranked are left out.
func CalculateFinalResults(names []string, votes map[string][]RankEntry, creator string) Results {
	total := make(map[string]int)
	playerVotes := make(map[string][]RankEntry, len(votes))
	for id, ranking := range votes {
		playerVotes[id] = append([]RankEntry(nil), ranking...)
		for _, e := range ranking {
			total[e.Name] += e.Rank
		}
	}

	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}
	creatorRank := make(map[string]int)
	for _, e := range votes[creator] {
		creatorRank[e.Name] = e.Rank
	}

	ranked := make([]string, 0, len(total))
	for _, n := range names {
		if _, ok := total[n]; ok {
			ranked = append(ranked, n)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if total[a] != total[b] {
			return total[a] < total[b]
		}
		ca, okA := creatorRank[a]
		cb, okB := creatorRank[b]
		if okA && okB && ca != cb {
			return ca < cb
		}
		return order[a] < order[b]
	})

	group := make([]RankEntry, len(ranked))
	for i, n := range ranked {
		group[i] = RankEntry{Name: n, Rank: i + 1}
	}
	return Results{GroupRanking: group, PlayerVotes: playerVotes}
}

// ScoredName is a name with a fractional average rank.
type ScoredName struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TotalScoredName is a name's average over every term in a demo session.
type TotalScoredName struct {
	Name       string  `json:"name"`
	TotalScore float64 `json:"totalScore"`
}

// RecordDemoVote folds one demo submission into the running sums for the current term.
func (s *Session) RecordDemoVote(ranking []RankEntry) {
	s.Normalize()
	term := s.RankingTerm.Key()
	s.TotalVotes++
	s.TermVotes[term]++
	for _, e := range ranking {
		scores := s.CumulativeScores[e.Name]
		if scores == nil {
			scores = make(map[string]int)
			s.CumulativeScores[e.Name] = scores
		}
		scores[term] += e.Rank
	}
}

// DemoAverages returns each name's average rank under the current term, best first.
func (s *Session) DemoAverages() []ScoredName {
	term := s.RankingTerm.Key()
	votes := s.TermVotes[term]
	out := make([]ScoredName, 0, len(s.Names))
	for _, n := range s.Names {
		scores, ok := s.CumulativeScores[n]
		if !ok {
			continue
		}
		avg := 0.0
		if votes > 0 {
			avg = float64(scores[term]) / float64(votes)
		}
		out = append(out, ScoredName{Name: n, Score: avg})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// DemoTotals returns each name's summed score over all terms divided by every vote cast.
func (s *Session) DemoTotals() []TotalScoredName {
	out := make([]TotalScoredName, 0, len(s.Names))
	for _, n := range s.Names {
		scores, ok := s.CumulativeScores[n]
		if !ok {
			continue
		}
		sum := 0
		for _, v := range scores {
			sum += v
		}
		avg := 0.0
		if s.TotalVotes > 0 {
			avg = float64(sum) / float64(s.TotalVotes)
		}
		out = append(out, TotalScoredName{Name: n, TotalScore: avg})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalScore < out[j].TotalScore })
	return out
}

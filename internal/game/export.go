package game

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExportRound appends a text report of a completed round to filename.
func ExportRound(s *Session, res Results, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder

	// Session header only before its first round
	if s.Version == 0 {
		if fileExists {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("Force Rank Results - Game %s\n", s.Code))
		sb.WriteString(fmt.Sprintf("Started: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05")))
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")
		sb.WriteString(fmt.Sprintf("Names: %s\n", strings.Join(s.Names, ", ")))
		sb.WriteString(fmt.Sprintf("Players: %d\n\n", s.PlayersCount))
	}

	sb.WriteString(fmt.Sprintf("Round %d: most %q vs most %q\n", s.Version+1, s.RankingTerm.Most, s.RankingTerm.Least))
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	sb.WriteString("Group ranking:\n")
	for _, e := range res.GroupRanking {
		sb.WriteString(fmt.Sprintf("%d. %s\n", e.Rank, e.Name))
	}

	if len(res.PlayerVotes) > 0 {
		sb.WriteString("\nVotes:\n")
		ids := make([]string, 0, len(res.PlayerVotes))
		for id := range res.PlayerVotes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			ranking := append([]RankEntry(nil), res.PlayerVotes[id]...)
			sort.Slice(ranking, func(i, j int) bool { return ranking[i].Rank < ranking[j].Rank })
			parts := make([]string, len(ranking))
			for i, e := range ranking {
				parts[i] = e.Name
			}
			label := id
			if id == s.Creator {
				label += " (creator)"
			}
			sb.WriteString(fmt.Sprintf("- %s: %s\n", label, strings.Join(parts, " > ")))
		}
	}
	sb.WriteString(fmt.Sprintf("\nCompleted at %s\n", time.Now().Format("2006-01-02 15:04:05")))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

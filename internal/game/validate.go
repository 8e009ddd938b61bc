package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRanking = errors.New("invalid ranking")
	ErrTooFewNames    = errors.New("at least two names are required")
	ErrDuplicateName  = errors.New("duplicate name")
)

// CleanNames trims the creator's list and rejects empty or repeated names.
func CleanNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, n)
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) < 2 {
		return nil, ErrTooFewNames
	}
	return out, nil
}

// ValidateRanking checks that ranking is a permutation of names with ranks 1..N.
func ValidateRanking(names []string, ranking []RankEntry) error {
	if len(ranking) != len(names) {
		return fmt.Errorf("%w: got %d entries for %d names", ErrInvalidRanking, len(ranking), len(names))
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	seenName := make(map[string]bool, len(ranking))
	seenRank := make(map[int]bool, len(ranking))
	for _, e := range ranking {
		if !known[e.Name] {
			return fmt.Errorf("%w: unknown name %q", ErrInvalidRanking, e.Name)
		}
		if seenName[e.Name] {
			return fmt.Errorf("%w: %q ranked twice", ErrInvalidRanking, e.Name)
		}
		if e.Rank < 1 || e.Rank > len(names) {
			return fmt.Errorf("%w: rank %d out of range", ErrInvalidRanking, e.Rank)
		}
		if seenRank[e.Rank] {
			return fmt.Errorf("%w: rank %d used twice", ErrInvalidRanking, e.Rank)
		}
		seenName[e.Name] = true
		seenRank[e.Rank] = true
	}
	return nil
}

// IdentityRanking ranks names in their original order.
func IdentityRanking(names []string) []RankEntry {
	out := make([]RankEntry, len(names))
	for i, n := range names {
		out[i] = RankEntry{Name: n, Rank: i + 1}
	}
	return out
}

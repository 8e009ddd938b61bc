// Package terms holds the built-in list of ranking terms and loads custom lists.
package terms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/spf13/viper"
)

// Default is the list seeded into a fresh store.
var Default = []game.Term{
	{ID: 1, Most: "Clean", Least: "Dirty"},
	{ID: 2, Most: "Buff", Least: "Weak"},
	{ID: 3, Most: "Tall", Least: "Short"},
	{ID: 4, Most: "Funny", Least: "Serious"},
	{ID: 5, Most: "Country", Least: "Rock n Roll"},
	{ID: 6, Most: "Convertible", Least: "SUV"},
	{ID: 7, Most: "Star Wars", Least: "Star Trek"},
	{ID: 8, Most: "Introvert", Least: "Extrovert"},
	{ID: 9, Most: "Optimistic", Least: "Pessimistic"},
	{ID: 10, Most: "Modern", Least: "Classic"},
	{ID: 11, Most: "Urban", Least: "Rural"},
	{ID: 12, Most: "Hot", Least: "Cold"},
	{ID: 13, Most: "Organized", Least: "Messy"},
	{ID: 14, Most: "Early Bird", Least: "Night Owl"},
	{ID: 15, Most: "Spicy", Least: "Mild"},
	{ID: 16, Most: "Ocean", Least: "Mountains"},
	{ID: 17, Most: "Tech-savvy", Least: "Technophobe"},
	{ID: 18, Most: "Adventurous", Least: "Cautious"},
	{ID: 19, Most: "Leader", Least: "Follower"},
	{ID: 20, Most: "Logical", Least: "Emotional"},
}

var ErrEmpty = errors.New("term list is empty")

// LoadFile reads a term list from a YAML, JSON or TOML file with a top-level
// "terms" key holding {id, most, least} entries.
func LoadFile(path string) ([]game.Term, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read terms file: %w", err)
	}
	var out []game.Term
	if err := v.UnmarshalKey("terms", &out); err != nil {
		return nil, fmt.Errorf("decode terms file: %w", err)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate rejects empty lists, blank labels and repeated most-labels, which
// would collide in demo score maps.
func Validate(list []game.Term) error {
	if len(list) == 0 {
		return ErrEmpty
	}
	seen := make(map[string]bool, len(list))
	for i, t := range list {
		if strings.TrimSpace(t.Most) == "" || strings.TrimSpace(t.Least) == "" {
			return fmt.Errorf("term %d: both labels are required", i+1)
		}
		if seen[t.Key()] {
			return fmt.Errorf("term %d: duplicate label %q", i+1, t.Most)
		}
		seen[t.Key()] = true
	}
	return nil
}

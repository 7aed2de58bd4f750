package shop

import (
	"fmt"
	"regexp"

	"github.com/zlkm/farmbot/internal/game"
)

// Matcher identifies stacks of one item by exact name or by a
// case-insensitive pattern on the display name.
type Matcher struct {
	name    string
	display *regexp.Regexp
}

func NewMatcher(name, pattern string) (Matcher, error) {
	m := Matcher{name: name}
	if pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return Matcher{}, fmt.Errorf("invalid item pattern %q: %w", pattern, err)
		}
		m.display = re
	}
	return m, nil
}

func (m Matcher) Match(it *game.Item) bool {
	if it == nil {
		return false
	}
	if it.Name == m.name {
		return true
	}
	return m.display != nil && m.display.MatchString(it.DisplayName)
}

// Count sums the stack sizes of every matching slot.
func (m Matcher) Count(slots []*game.Item) int {
	total := 0
	for _, it := range slots {
		if m.Match(it) {
			total += it.Count
		}
	}
	return total
}

// Find returns the lowest matching slot and its stack size, or -1.
func (m Matcher) Find(slots []*game.Item) (int, int) {
	for i, it := range slots {
		if m.Match(it) {
			return i, it.Count
		}
	}
	return -1, 0
}

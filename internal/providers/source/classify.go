package source

import (
	"fmt"
	"slices"
	"strings"

	"github.com/coregx/ahocorasick"
)

const defaultCategory = "general"

// Rule maps folder or file name keywords to a category. Earlier rules win.
type Rule struct {
	Category string
	Keywords []string
}

var DefaultRules = []Rule{
	{Category: "relief", Keywords: []string{"relief"}},
	{Category: "absent", Keywords: []string{"absent", "absence"}},
	{Category: "event", Keywords: []string{"event", "bulletin"}},
	{Category: "venue_change", Keywords: []string{"venue", "room"}},
	{Category: "duty_roster", Keywords: []string{"duty", "roster"}},
	{Category: "general", Keywords: []string{"student", "movement"}},
}

// Classifier detects the category of a synced item from its folder and
// file name. The folder decides when it matches anything.
type Classifier struct {
	ac       *ahocorasick.Automaton
	priority []int
	rules    []Rule
	fallback string
}

func NewClassifier(rules []Rule, known []string, fallback string) (*Classifier, error) {
	if fallback == "" {
		fallback = defaultCategory
	}
	c := &Classifier{fallback: fallback}

	var patterns []string
	for _, r := range rules {
		if len(known) > 0 && !slices.Contains(known, r.Category) {
			continue
		}
		for _, kw := range r.Keywords {
			kw = canonical(kw)
			if kw == "" {
				continue
			}
			patterns = append(patterns, kw)
			c.priority = append(c.priority, len(c.rules))
		}
		c.rules = append(c.rules, r)
	}
	if len(patterns) == 0 {
		return c, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build keyword automaton: %w", err)
	}
	c.ac = ac
	return c, nil
}

func (c *Classifier) Classify(folder, name string) string {
	if c == nil {
		return defaultCategory
	}
	if cat, ok := c.scan(folder); ok {
		return cat
	}
	if cat, ok := c.scan(name); ok {
		return cat
	}
	return c.fallback
}

func (c *Classifier) scan(text string) (string, bool) {
	if c.ac == nil || text == "" {
		return "", false
	}
	best := -1
	for _, m := range c.ac.FindAllOverlapping([]byte(canonical(text))) {
		p := c.priority[m.PatternID]
		if best == -1 || p < best {
			best = p
		}
	}
	if best == -1 {
		return "", false
	}
	return c.rules[best].Category, true
}

func canonical(s string) string {
	return strings.ToLower(strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s))
}

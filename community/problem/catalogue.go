// Package problem serves the static practice-problem catalogue.
package problem

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed problems.yaml
var builtin []byte

const (
	Easy   = "easy"
	Medium = "medium"
	Hard   = "hard"
	// All disables the difficulty filter.
	All = "all"
)

// Problem is one catalogue entry.
type Problem struct {
	ID          string  `yaml:"id" json:"id"`
	Number      int     `yaml:"number" json:"number"`
	Title       string  `yaml:"title" json:"title"`
	Difficulty  string  `yaml:"difficulty" json:"difficulty"`
	Category    string  `yaml:"category" json:"category"`
	Acceptance  float64 `yaml:"acceptance" json:"acceptance"`
	Description string  `yaml:"description" json:"description"`
}

// Catalogue is read-only after construction and safe for concurrent use.
type Catalogue struct {
	problems []Problem
	byID     map[string]int
}

// Load parses a YAML catalogue. Ids must be unique and non-empty and
// difficulties one of easy, medium or hard.
func Load(data []byte) (*Catalogue, error) {
	var doc struct {
		Problems []Problem `yaml:"problems"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("problem: parse catalogue: %w", err)
	}
	c := &Catalogue{problems: doc.Problems, byID: make(map[string]int, len(doc.Problems))}
	for i, p := range c.problems {
		if p.ID == "" {
			return nil, fmt.Errorf("problem: entry %d has no id", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("problem: duplicate id %q", p.ID)
		}
		switch p.Difficulty {
		case Easy, Medium, Hard:
		default:
			return nil, fmt.Errorf("problem: %q has difficulty %q", p.ID, p.Difficulty)
		}
		c.byID[p.ID] = i
	}
	return c, nil
}

// Builtin returns the embedded catalogue.
func Builtin() *Catalogue {
	c, err := Load(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns problems of the given difficulty; "" or All returns every
// problem. Order follows the catalogue.
func (c *Catalogue) List(difficulty string) []Problem {
	if difficulty == "" || difficulty == All {
		return slices.Clone(c.problems)
	}
	var out []Problem
	for _, p := range c.problems {
		if p.Difficulty == difficulty {
			out = append(out, p)
		}
	}
	return out
}

// Search matches query case-insensitively against title, description and
// category. An empty query matches everything.
func (c *Catalogue) Search(query string) []Problem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(c.problems)
	}
	var out []Problem
	for _, p := range c.problems {
		if p.matches(q) {
			out = append(out, p)
		}
	}
	return out
}

// matches expects q already lower-cased.
func (p Problem) matches(q string) bool {
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Description), q) ||
		strings.Contains(strings.ToLower(p.Category), q)
}

// Find applies the difficulty filter and then the search query.
func (c *Catalogue) Find(difficulty, query string) []Problem {
	listed := c.List(difficulty)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return listed
	}
	out := listed[:0]
	for _, p := range listed {
		if p.matches(q) {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the problem with id.
func (c *Catalogue) Get(id string) (Problem, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Problem{}, false
	}
	return c.problems[i], true
}

// Len returns the number of problems.
func (c *Catalogue) Len() int { return len(c.problems) }

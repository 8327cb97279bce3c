// Package subjectivity rejects opinion-bearing statements before they are
// decomposed. Patterns and opinion words are data, loadable from YAML.
package subjectivity

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is the data the gate matches against
type Lexicon struct {
	Patterns     []string `yaml:"patterns"`      // Regular expressions, matched case-insensitively anywhere
	OpinionWords []string `yaml:"opinion_words"` // Exact matches against lowercase whitespace tokens
}

// DefaultPatterns returns the built-in subjective phrase patterns
func DefaultPatterns() []string {
	return []string{
		`\b(i think|i believe|i feel|i guess|i suppose|i assume)\b`,
		`\b(in my opinion|in my view|personally|to me)\b`,
		`\b(it seems|it appears|it looks like|it sounds like)\b`,
		`\b(probably|maybe|perhaps|possibly|likely|unlikely)\b`,
		`\b(clearly|obviously|undoubtedly|certainly|definitely)\b`,
		`\b(surprisingly|unfortunately|fortunately|sadly|thankfully)\b`,
		`\b(amazing|incredible|terrible|awful|wonderful|fantastic)\b`,
		`\b(very|extremely|incredibly|absolutely|completely|totally)\b`,
		`\b(always|never|all|every|none|nothing|everything)\b`,
		`\b(should|must|ought to|need to|have to)\b`,
	}
}

// DefaultOpinionWords returns the built-in opinion word list
func DefaultOpinionWords() []string {
	return []string{
		"think", "believe", "feel", "guess", "suppose", "assume",
		"opinion", "view", "personally", "probably", "maybe", "perhaps",
	}
}

// DefaultLexicon returns the built-in lexicon
func DefaultLexicon() Lexicon {
	return Lexicon{
		Patterns:     DefaultPatterns(),
		OpinionWords: DefaultOpinionWords(),
	}
}

// LoadLexicon reads a lexicon from a YAML file. Sections missing from the
// file fall back to the built-in lists.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	if len(lex.Patterns) == 0 {
		lex.Patterns = DefaultPatterns()
	}
	if len(lex.OpinionWords) == 0 {
		lex.OpinionWords = DefaultOpinionWords()
	}
	return lex, nil
}

// Gate classifies statements as subjective or factual candidates
type Gate struct {
	patterns []*regexp.Regexp
	words    map[string]struct{}
}

// NewGate compiles a lexicon into a gate
func NewGate(lex Lexicon) (*Gate, error) {
	g := &Gate{
		patterns: make([]*regexp.Regexp, 0, len(lex.Patterns)),
		words:    make(map[string]struct{}, len(lex.OpinionWords)),
	}

	for _, p := range lex.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		g.patterns = append(g.patterns, re)
	}

	for _, w := range lex.OpinionWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			g.words[w] = struct{}{}
		}
	}

	return g, nil
}

// MustDefaultGate returns a gate over the built-in lexicon
func MustDefaultGate() *Gate {
	g, err := NewGate(DefaultLexicon())
	if err != nil {
		panic(err)
	}
	return g
}

// IsSubjective reports whether the statement carries opinion or hedging.
// Empty input is never subjective; rejecting it is the caller's concern.
func (g *Gate) IsSubjective(statement string) bool {
	if strings.TrimSpace(statement) == "" {
		return false
	}

	for _, re := range g.patterns {
		if re.MatchString(statement) {
			return true
		}
	}

	for _, token := range strings.Fields(strings.ToLower(statement)) {
		if _, ok := g.words[token]; ok {
			return true
		}
	}

	return false
}

// Match returns the first rule that classified the statement as subjective,
// or "" when it is a factual candidate.
func (g *Gate) Match(statement string) string {
	if strings.TrimSpace(statement) == "" {
		return ""
	}
	for _, re := range g.patterns {
		if loc := re.FindString(statement); loc != "" {
			return "pattern:" + strings.ToLower(loc)
		}
	}
	for _, token := range strings.Fields(strings.ToLower(statement)) {
		if _, ok := g.words[token]; ok {
			return "word:" + token
		}
	}
	return ""
}

package model

import (
	"fmt"
	"strings"
)

// Verdict is the final outcome for a statement
type Verdict string

const (
	VerdictFactual    Verdict = "YES"                // Every atomic question judged Yes
	VerdictNotFactual Verdict = "NO"                 // At least one atomic question judged No
	VerdictSkipped    Verdict = "SKIPPED_SUBJECTIVE" // Rejected by the subjectivity gate
	VerdictError      Verdict = "ERROR"              // Could not be determined (batch output only)
)

// IsFactual reports whether the verdict is the factual outcome
func (v Verdict) IsFactual() bool {
	return v == VerdictFactual
}

// Judgment is the answer to one atomic question
type Judgment string

const (
	JudgmentYes          Judgment = "Yes"
	JudgmentNo           Judgment = "No"
	JudgmentInconclusive Judgment = "Inconclusive" // Evidence retrieval failed; aggregates as No
)

// Affirmative reports whether the judgment supports the statement
func (j Judgment) Affirmative() bool {
	return j == JudgmentYes
}

// BackendMode selects which generation backend serves a statement
type BackendMode string

const (
	BackendRemote BackendMode = "remote"
	BackendLocal  BackendMode = "local"
)

// ParseBackendMode parses a backend mode name (case-insensitive)
func ParseBackendMode(s string) (BackendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "remote", "api", "openai":
		return BackendRemote, nil
	case "local", "mistral":
		return BackendLocal, nil
	default:
		return "", fmt.Errorf("unknown backend mode: %s (supported: remote, local)", s)
	}
}

// QuestionResult binds one atomic question to its judgment
type QuestionResult struct {
	Question  string   `json:"question"`
	Judgment  Judgment `json:"judgment,omitempty"` // Empty when not evaluated
	Evaluated bool     `json:"evaluated"`          // False for questions after a short-circuit
}

// Result is the outcome of verifying one statement
type Result struct {
	Statement string           `json:"statement"`
	Verdict   Verdict          `json:"verdict"`
	Questions []QuestionResult `json:"questions,omitempty"` // Nil for skipped statements
}

// EvaluatedCount returns how many questions were actually judged
func (r *Result) EvaluatedCount() int {
	n := 0
	for _, q := range r.Questions {
		if q.Evaluated {
			n++
		}
	}
	return n
}

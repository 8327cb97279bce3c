package model

import "time"

// Row is one input statement read from a batch source
type Row struct {
	Number    int               `json:"row_number"` // 1-based data row index (header excluded)
	Statement string            `json:"statement"`
	Columns   map[string]string `json:"columns,omitempty"` // All original columns, preserved in output
}

// RowResult is the verification outcome for one batch row
type RowResult struct {
	Row    Row     `json:"row"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Verdict returns the verdict to report, ERROR when verification failed
func (r *RowResult) Verdict() Verdict {
	if r.Error != "" || r.Result == nil {
		return VerdictError
	}
	return r.Result.Verdict
}

// BatchReport summarises one batch run
type BatchReport struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Backend    BackendMode   `json:"backend"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Counts     BatchCounts   `json:"counts"`
	Rows       []RowResult   `json:"rows"`
	Skipped    []SkippedRow  `json:"skipped_rows,omitempty"` // Rows rejected as empty input
	Duration   time.Duration `json:"duration_ns"`
}

// SkippedRow records an input row that never reached the pipeline
type SkippedRow struct {
	Number int    `json:"row_number"`
	Reason string `json:"reason"`
}

// BatchCounts tallies verdicts in a batch
type BatchCounts struct {
	Total      int `json:"total"`
	Factual    int `json:"factual"`
	NotFactual int `json:"not_factual"`
	Subjective int `json:"subjective"`
	Errors     int `json:"errors"`
}

// Tally computes counts for a set of row results
func Tally(rows []RowResult) BatchCounts {
	c := BatchCounts{Total: len(rows)}
	for i := range rows {
		switch rows[i].Verdict() {
		case VerdictFactual:
			c.Factual++
		case VerdictNotFactual:
			c.NotFactual++
		case VerdictSkipped:
			c.Subjective++
		default:
			c.Errors++
		}
	}
	return c
}

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/verity/internal/model"
)

// Options are the per-query retrieval settings
type Options struct {
	MaxResults        int
	Depth             string // basic | advanced
	Topic             string // general | news | finance
	TimeRange         string // day | week | month | year
	StartDate         string // YYYY-MM-DD
	EndDate           string // YYYY-MM-DD
	IncludeDomains    []string
	ExcludeDomains    []string
	Country           string
	IncludeAnswer     bool
	IncludeRawContent bool
}

// DefaultOptions returns the retrieval defaults
func DefaultOptions() Options {
	return Options{
		MaxResults:    5,
		Depth:         "basic",
		Topic:         "general",
		IncludeAnswer: true,
	}
}

// OptionsFromConfig converts model.SearchConfig to Options
func OptionsFromConfig(c model.SearchConfig) Options {
	return Options{
		MaxResults:        c.MaxResults,
		Depth:             c.Depth,
		Topic:             c.Topic,
		TimeRange:         c.TimeRange,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		IncludeDomains:    c.IncludeDomains,
		ExcludeDomains:    c.ExcludeDomains,
		Country:           c.Country,
		IncludeAnswer:     c.IncludeAnswer,
		IncludeRawContent: c.IncludeRawContent,
	}
}

// Validate checks option values before a request is sent
func (o Options) Validate() error {
	if o.MaxResults < 0 || o.MaxResults > 20 {
		return fmt.Errorf("max_results must be between 0 and 20, got %d", o.MaxResults)
	}

	switch strings.ToLower(o.Depth) {
	case "", "basic", "advanced":
	default:
		return fmt.Errorf("invalid search depth %q (supported: basic, advanced)", o.Depth)
	}

	switch strings.ToLower(o.Topic) {
	case "", "general", "news", "finance":
	default:
		return fmt.Errorf("invalid search topic %q (supported: general, news, finance)", o.Topic)
	}

	switch strings.ToLower(o.TimeRange) {
	case "", "day", "week", "month", "year", "d", "w", "m", "y":
	default:
		return fmt.Errorf("invalid time range %q (supported: day, week, month, year)", o.TimeRange)
	}

	var start, end time.Time
	var err error
	if o.StartDate != "" {
		if start, err = time.Parse("2006-01-02", o.StartDate); err != nil {
			return fmt.Errorf("invalid start_date %q (want YYYY-MM-DD)", o.StartDate)
		}
	}
	if o.EndDate != "" {
		if end, err = time.Parse("2006-01-02", o.EndDate); err != nil {
			return fmt.Errorf("invalid end_date %q (want YYYY-MM-DD)", o.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("end_date %s is before start_date %s", o.EndDate, o.StartDate)
	}

	return nil
}

// cacheParts lists every field that changes the response
func (o Options) cacheParts(query string) []string {
	return []string{
		query,
		fmt.Sprint(o.MaxResults),
		o.Depth,
		o.Topic,
		o.TimeRange,
		o.StartDate,
		o.EndDate,
		strings.Join(o.IncludeDomains, ","),
		strings.Join(o.ExcludeDomains, ","),
		o.Country,
		fmt.Sprint(o.IncludeAnswer),
		fmt.Sprint(o.IncludeRawContent),
	}
}

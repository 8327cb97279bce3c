// Package search retrieves web evidence for atomic questions.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/verity/internal/cache"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/util"
	"github.com/ppiankov/verity/internal/worker"
)

var tracer = otel.Tracer("verity/search")

// ErrNoAPIKey is returned when no search credential is configured
var ErrNoAPIKey = errors.New("search API key is required (set TAVILY_API_KEY)")

// Searcher retrieves evidence for a query
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// Response is the structured evidence for one query
type Response struct {
	Query        string           `json:"query"`
	Answer       string           `json:"answer,omitempty"`
	Results      []model.Evidence `json:"results"`
	ResponseTime float64          `json:"response_time,omitempty"`
}

// Tavily API structures
type tavilyRequest struct {
	Query             string   `json:"query"`
	MaxResults        int      `json:"max_results,omitempty"`
	Topic             string   `json:"topic,omitempty"`
	SearchDepth       string   `json:"search_depth,omitempty"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
	Country           string   `json:"country,omitempty"`
	TimeRange         string   `json:"time_range,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
}

type tavilyResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

type tavilyResponse struct {
	Query        string         `json:"query"`
	Answer       string         `json:"answer"`
	Results      []tavilyResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

type tavilyError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// ClientConfig configures the Tavily client
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
	CacheTTL   time.Duration
}

// ClientConfigFromModel converts model.SearchConfig to ClientConfig
func ClientConfigFromModel(c model.SearchConfig, cacheTTL time.Duration) ClientConfig {
	return ClientConfig{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
		CacheTTL:   cacheTTL,
	}
}

// Client calls the Tavily search API. Identical concurrent queries share
// one request, and responses are cached by query and options.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	cacheTTL   time.Duration

	limiter *worker.Limiter
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger

	group singleflight.Group
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLimiter throttles outbound requests
func WithLimiter(l *worker.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithCache stores responses
func WithCache(store cache.Cache) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.cache = store
		}
	}
}

// WithMetrics records search latency
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Tavily client
func NewClient(config ClientConfig, opts ...ClientOption) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: util.NewHTTPClient(timeout, config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		timeout:    timeout,
		cacheTTL:   config.CacheTTL,
		cache:      cache.NopCache{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search runs one query. Errors are returned as-is; the caller decides how a
// failed retrieval affects the judgment. A shared request is detached from
// the caller that started it: each caller only sees its own cancellation.
func (c *Client) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	key := cache.CacheKey("search", opts.cacheParts(query)...)

	if data, ok := c.cache.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			c.metrics.ObserveSearch(time.Since(start), true)
			c.logger.Debug("search cache hit", zap.String("query", query))
			return &resp, nil
		}
		_ = c.cache.Delete(key)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		resp, err := c.fetch(fetchCtx, query, opts)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(resp); err == nil {
			if err := c.cache.Set(key, data, c.cacheTTL); err != nil {
				c.logger.Debug("search cache write failed", zap.Error(err))
			}
		}
		return resp, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.metrics.ObserveSearch(time.Since(start), false)
	if res.Err != nil {
		return nil, res.Err
	}

	c.logger.Debug("search complete",
		zap.String("query", query),
		zap.Bool("shared", res.Shared),
		zap.Duration("elapsed", time.Since(start)))
	return res.Val.(*Response), nil
}

func (c *Client) fetch(ctx context.Context, query string, opts Options) (resp *Response, err error) {
	ctx, span := tracer.Start(ctx, "search.tavily", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("verity.search.results", len(resp.Results)))
		}
		span.End()
	}()

	endpoint := c.baseURL + "/search"
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	apiReq := tavilyRequest{
		Query:             query,
		MaxResults:        opts.MaxResults,
		Topic:             strings.ToLower(opts.Topic),
		SearchDepth:       strings.ToLower(opts.Depth),
		IncludeAnswer:     opts.IncludeAnswer,
		IncludeRawContent: opts.IncludeRawContent,
		IncludeDomains:    opts.IncludeDomains,
		ExcludeDomains:    opts.ExcludeDomains,
		Country:           opts.Country,
		TimeRange:         opts.TimeRange,
		StartDate:         opts.StartDate,
		EndDate:           opts.EndDate,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr tavilyError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Detail.Error != "" {
			return nil, fmt.Errorf("search API error (%d): %s", httpResp.StatusCode, apiErr.Detail.Error)
		}
		return nil, fmt.Errorf("search API error (%d): %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var raw tavilyResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	resp = &Response{
		Query:        raw.Query,
		Answer:       strings.TrimSpace(raw.Answer),
		ResponseTime: raw.ResponseTime,
		Results:      make([]model.Evidence, 0, len(raw.Results)),
	}
	if resp.Query == "" {
		resp.Query = query
	}
	for _, r := range raw.Results {
		resp.Results = append(resp.Results, model.Evidence{
			Title:      r.Title,
			URL:        r.URL,
			Content:    r.Content,
			RawContent: r.RawContent,
			Score:      r.Score,
		})
	}
	return resp, nil
}

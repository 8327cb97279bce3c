package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/cache"
	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/search"
	"github.com/ppiankov/verity/internal/subjectivity"
	"github.com/ppiankov/verity/internal/telemetry"
	"github.com/ppiankov/verity/internal/verify"
	"github.com/ppiankov/verity/internal/worker"
)

// app holds the components built for one command invocation
type app struct {
	config    *model.Config
	verifier  *verify.Verifier
	metrics   *metrics.Metrics
	telemetry *telemetry.Telemetry
	store     cache.Cache
}

// newApp wires the verification pipeline from cfg. A remote backend that
// cannot be built is logged and left out: local-mode statements can still be
// served, and remote ones fail with a generation error.
func newApp(cfg *model.Config, noCache bool) (*app, error) {
	m := metrics.New()

	tel, err := telemetry.Setup(cfg.Telemetry, Version, m, logger)
	if err != nil {
		return nil, err
	}

	gate, err := buildGate(cfg.Subjectivity)
	if err != nil {
		return nil, err
	}

	var remote llm.Generator
	if r, err := llm.NewRemote(llm.ConfigFromModel(cfg.LLM)); err != nil {
		logger.Warn("remote backend not configured", zap.Error(err))
	} else {
		remote = r
	}

	engine := llm.NewOllamaEngine(cfg.Local.BaseURL, cfg.Local.Timeout, cfg.LLM.HTTPProxy, cfg.LLM.HTTPSProxy, cfg.LLM.NoProxy)
	loader := llm.NewModelLoader(llm.LocalConfigFromModel(cfg.Local), engine, logger.Named("local"))
	selector := llm.NewSelector(remote, loader, logger.Named("backend"), m)

	cacheConfig := cfg.Cache
	if noCache {
		cacheConfig.Enabled = false
	}
	store := cache.New(cacheConfig)

	limiter, err := buildLimiter(cfg.RateLimiting)
	if err != nil {
		return nil, err
	}
	searcher, err := search.NewClient(
		search.ClientConfigFromModel(cfg.Search, cfg.Cache.DiskTTL),
		search.WithLimiter(limiter),
		search.WithCache(store),
		search.WithMetrics(m),
		search.WithLogger(logger.Named("search")),
	)
	if err != nil {
		return nil, fmt.Errorf("search client: %w (set TAVILY_API_KEY)", err)
	}

	options := search.OptionsFromConfig(cfg.Search)
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("search options: %w", err)
	}

	classifier, err := search.NewAuthorityClassifier(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("authority config: %w", err)
	}

	verifier, err := verify.New(verify.Config{
		Gate:          gate,
		Backends:      selector,
		Searcher:      searcher,
		SearchOptions: options,
		Formatter:     search.NewFormatter(classifier),
		Settings:      cfg.Verify,
		Logger:        logger.Named("verify"),
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		config:    cfg,
		verifier:  verifier,
		metrics:   m,
		telemetry: tel,
		store:     store,
	}, nil
}

func buildLimiter(config model.RateLimitConfig) (*worker.Limiter, error) {
	limiter := worker.NewLimiter(config.RequestsPerSecond, config.BurstSize)
	for _, h := range config.Hosts {
		if err := limiter.SetHostRate(h.Host, h.RequestsPerSecond, h.BurstSize); err != nil {
			return nil, fmt.Errorf("rate_limiting.hosts: %w", err)
		}
	}
	return limiter, nil
}

func buildGate(config model.SubjectivityConfig) (*subjectivity.Gate, error) {
	lex := subjectivity.DefaultLexicon()
	if config.LexiconFile != "" {
		var err error
		lex, err = subjectivity.LoadLexicon(config.LexiconFile)
		if err != nil {
			return nil, err
		}
	}
	return subjectivity.NewGate(lex)
}

// close flushes telemetry and drops expired cache entries
func (a *app) close() {
	if pruner, ok := a.store.(interface{ Prune() (int, error) }); ok {
		if n, err := pruner.Prune(); err != nil {
			logger.Debug("cache prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Debug("cache pruned", zap.Int("entries", n))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}

// resolveBackend picks the backend mode: the flag when given, else config
func resolveBackend(flag string, cfg *model.Config) (model.BackendMode, error) {
	if flag != "" {
		return model.ParseBackendMode(flag)
	}
	return model.ParseBackendMode(cfg.Backend)
}

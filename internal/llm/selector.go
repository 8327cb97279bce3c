package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
)

var tracer = otel.Tracer("verity/llm")

// Selector routes generation calls to the remote or local backend. A local
// request is served remotely when the local model is unavailable; that
// fallback is only visible in logs and metrics.
type Selector struct {
	remote  Generator
	local   *ModelLoader
	logger  *zap.Logger
	metrics *metrics.Metrics

	warnOnce sync.Once
}

// NewSelector creates a selector. remote may be nil when only the local
// backend is configured; local may be nil when it is never requested.
func NewSelector(remote Generator, local *ModelLoader, logger *zap.Logger, m *metrics.Metrics) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		remote:  remote,
		local:   local,
		logger:  logger,
		metrics: m,
	}
}

// For binds a backend mode so every call for one statement uses the same mode
func (s *Selector) For(mode model.BackendMode) Generator {
	return &boundGenerator{selector: s, mode: mode}
}

// Generate serves req with the backend chosen by mode. Failures are
// returned as *GenerationError and are never retried.
func (s *Selector) Generate(ctx context.Context, req Request, mode model.BackendMode) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("verity.backend.requested", string(mode)))

	gen, backend, err := s.resolve(ctx, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("verity.backend.serving", backend))

	start := time.Now()
	resp, err := gen.Generate(ctx, req)
	s.metrics.ObserveGeneration(backend, time.Since(start), err)
	if err != nil {
		genErr := &GenerationError{Backend: backend, Err: err}
		span.RecordError(genErr)
		span.SetStatus(codes.Error, genErr.Error())
		return nil, genErr
	}

	s.logger.Debug("generation complete",
		zap.String("backend", backend),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (s *Selector) resolve(ctx context.Context, mode model.BackendMode) (Generator, string, error) {
	if mode == model.BackendLocal {
		handle, err := s.acquireLocal(ctx)
		if err == nil {
			return handle, string(model.BackendLocal), nil
		}
		if !errors.Is(err, ErrModelUnavailable) {
			// Cancellation while loading
			return nil, string(model.BackendLocal), &GenerationError{Backend: string(model.BackendLocal), Err: err}
		}

		s.warnOnce.Do(func() {
			s.logger.Warn("local model unavailable, falling back to remote backend", zap.Error(err))
		})
		s.logger.Debug("serving local request from remote backend", zap.Error(err))
		s.metrics.IncrementFallback()
	}

	if s.remote == nil {
		return nil, string(model.BackendRemote), &GenerationError{
			Backend: string(model.BackendRemote),
			Err:     fmt.Errorf("no remote backend configured"),
		}
	}
	return s.remote, string(model.BackendRemote), nil
}

func (s *Selector) acquireLocal(ctx context.Context) (*ModelHandle, error) {
	if s.local == nil {
		return nil, fmt.Errorf("%w: local backend not configured", ErrModelUnavailable)
	}
	return s.local.Acquire(ctx)
}

type boundGenerator struct {
	selector *Selector
	mode     model.BackendMode
}

func (b *boundGenerator) Name() string {
	return string(b.mode)
}

func (b *boundGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	return b.selector.Generate(ctx, req, b.mode)
}

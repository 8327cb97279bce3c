// Package verify decides whether a natural-language statement is factual:
// a subjectivity gate, question decomposition, evidence judgment per
// question and a short-circuit AND over the judgments.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/search"
	"github.com/ppiankov/verity/internal/subjectivity"
)

var tracer = otel.Tracer("verity/verify")

// Empty-decomposition policies
const (
	EmptyAsFactual = "factual"
	EmptyAsError   = "error"
)

// Backends hands out a generator bound to one backend mode
type Backends interface {
	For(mode model.BackendMode) llm.Generator
}

// Config wires a Verifier
type Config struct {
	Gate          *subjectivity.Gate
	Backends      Backends
	Searcher      search.Searcher
	SearchOptions search.Options
	Formatter     *search.Formatter
	Settings      model.VerifyConfig
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Verifier is the single entry point for verifying a statement
type Verifier struct {
	gate       *subjectivity.Gate
	backends   Backends
	decomposer *Decomposer
	judge      *Judge
	emptyIsErr bool
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Verifier
func New(config Config) (*Verifier, error) {
	if config.Backends == nil {
		return nil, fmt.Errorf("no generation backends configured")
	}
	if config.Searcher == nil {
		return nil, fmt.Errorf("no evidence searcher configured")
	}
	if config.Gate == nil {
		config.Gate = subjectivity.MustDefaultGate()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var emptyIsErr bool
	switch strings.ToLower(config.Settings.EmptyDecomposition) {
	case "", EmptyAsFactual:
	case EmptyAsError:
		emptyIsErr = true
	default:
		return nil, fmt.Errorf("invalid empty_decomposition policy %q (supported: factual, error)", config.Settings.EmptyDecomposition)
	}

	return &Verifier{
		gate:       config.Gate,
		backends:   config.Backends,
		decomposer: NewDecomposer(config.Settings),
		judge:      NewJudge(config.Searcher, config.SearchOptions, config.Formatter, config.Settings, config.Logger, config.Metrics),
		emptyIsErr: emptyIsErr,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}, nil
}

// Verify classifies statement. It returns ErrInputInvalid for empty input and
// a *llm.GenerationError when a backend fails; every other failure is
// absorbed. The backend mode is fixed for the whole statement.
func (v *Verifier) Verify(ctx context.Context, statement string, mode model.BackendMode) (*model.Result, error) {
	if strings.TrimSpace(statement) == "" {
		return nil, ErrInputInvalid
	}

	ctx, span := tracer.Start(ctx, "verify.statement")
	defer span.End()
	span.SetAttributes(attribute.String("verity.backend", string(mode)))

	start := time.Now()
	defer func() { v.metrics.ObserveVerify(time.Since(start)) }()

	result, err := v.verify(ctx, statement, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		v.metrics.IncrementStatement(string(model.VerdictError))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("verity.verdict", string(result.Verdict)),
		attribute.Int("verity.questions", len(result.Questions)),
		attribute.Int("verity.evaluated", result.EvaluatedCount()))
	v.metrics.IncrementStatement(string(result.Verdict))
	return result, nil
}

func (v *Verifier) verify(ctx context.Context, statement string, mode model.BackendMode) (*model.Result, error) {
	if match := v.gate.Match(statement); match != "" {
		v.logger.Debug("statement skipped as subjective", zap.String("match", match))
		return &model.Result{Statement: statement, Verdict: model.VerdictSkipped}, nil
	}

	gen := v.backends.For(mode)

	questions, err := v.decomposer.Decompose(ctx, gen, statement, mode)
	if err != nil {
		return nil, fmt.Errorf("decompose statement: %w", err)
	}

	if len(questions) == 0 {
		v.metrics.IncrementEmptyDecomposition()
		if v.emptyIsErr {
			return nil, ErrEmptyDecomposition
		}
		v.logger.Warn("decomposition produced no questions, treating statement as factual",
			zap.String("statement", statement))
	}

	verdict, results, err := Aggregate(ctx, boundJudge{judge: v.judge, gen: gen, metrics: v.metrics}, questions)
	if err != nil {
		return nil, fmt.Errorf("judge question: %w", err)
	}

	v.logger.Debug("statement verified",
		zap.String("verdict", string(verdict)),
		zap.Int("questions", len(questions)))
	return &model.Result{Statement: statement, Verdict: verdict, Questions: results}, nil
}

// boundJudge fixes the generator for the statement being verified
type boundJudge struct {
	judge   *Judge
	gen     llm.Generator
	metrics *metrics.Metrics
}

func (b boundJudge) Judge(ctx context.Context, question string) (model.Judgment, error) {
	j, err := b.judge.Judge(ctx, b.gen, question)
	if err == nil {
		b.metrics.IncrementJudgment(string(j))
	}
	return j, err
}

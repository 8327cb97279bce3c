package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/model"
)

// Verifier is the single-statement entry point the batch drives
type Verifier interface {
	Verify(ctx context.Context, statement string, mode model.BackendMode) (*model.Result, error)
}

// VerifyJob verifies one batch row
type VerifyJob struct {
	Index    int
	Row      model.Row
	Mode     model.BackendMode
	Timeout  time.Duration
	Verifier Verifier
}

// Execute runs the verification with the per-statement timeout
func (j *VerifyJob) Execute(ctx context.Context) Result {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	result, err := j.Verifier.Verify(ctx, j.Row.Statement, j.Mode)
	return &VerifyResult{Index: j.Index, Row: j.Row, Result: result, Err: err}
}

// VerifyResult is the outcome of a VerifyJob
type VerifyResult struct {
	Index  int
	Row    model.Row
	Result *model.Result
	Err    error
}

// GetError returns the verification error
func (r *VerifyResult) GetError() error {
	return r.Err
}

// RowResult converts to the report shape
func (r *VerifyResult) RowResult() model.RowResult {
	rr := model.RowResult{Row: r.Row, Result: r.Result}
	if r.Err != nil {
		rr.Result = nil
		rr.Error = r.Err.Error()
	}
	return rr
}

// ProgressFunc is called after each row completes
type ProgressFunc func(done, total int, row model.RowResult)

// BatchRunner verifies many statements concurrently. Statements are
// independent; each one is processed sequentially inside Verify.
type BatchRunner struct {
	verifier    Verifier
	concurrency int
	mode        model.BackendMode
	timeout     time.Duration
	logger      *zap.Logger
	progress    ProgressFunc
}

// BatchOption configures a BatchRunner
type BatchOption func(*BatchRunner)

// WithTimeout bounds each statement's verification
func WithTimeout(d time.Duration) BatchOption {
	return func(b *BatchRunner) { b.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) BatchOption {
	return func(b *BatchRunner) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithProgress registers a progress callback; it is called from one goroutine
func WithProgress(fn ProgressFunc) BatchOption {
	return func(b *BatchRunner) { b.progress = fn }
}

// NewBatchRunner creates a new batch runner
func NewBatchRunner(verifier Verifier, concurrency int, mode model.BackendMode, opts ...BatchOption) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	b := &BatchRunner{
		verifier:    verifier,
		concurrency: concurrency,
		mode:        mode,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run verifies rows and returns a report with results in input order. A
// failed row is recorded and the batch continues. Cancelling ctx stops the
// batch; rows that never ran are reported with the context error.
func (b *BatchRunner) Run(ctx context.Context, source string, rows []model.Row) *model.BatchReport {
	report := &model.BatchReport{
		RunID:     uuid.NewString(),
		Source:    source,
		Backend:   b.mode,
		StartedAt: time.Now(),
		Rows:      make([]model.RowResult, len(rows)),
	}

	logger := b.logger.With(zap.String("run_id", report.RunID))
	logger.Info("batch started",
		zap.String("source", source),
		zap.Int("rows", len(rows)),
		zap.Int("concurrency", b.concurrency),
		zap.String("backend", string(b.mode)))

	completed := make([]bool, len(rows))
	done := 0

	if len(rows) > 0 {
		pool := NewPool(ctx, b.concurrency)
		pool.Start()
		defer pool.Shutdown()

		go func() {
			defer pool.Close()
			for i, row := range rows {
				job := &VerifyJob{
					Index:    i,
					Row:      row,
					Mode:     b.mode,
					Timeout:  b.timeout,
					Verifier: b.verifier,
				}
				if err := pool.Submit(job); err != nil {
					return
				}
			}
		}()

		for r := range pool.Results() {
			vr := r.(*VerifyResult)
			rr := vr.RowResult()
			report.Rows[vr.Index] = rr
			completed[vr.Index] = true

			done++
			if vr.Err != nil {
				logger.Warn("statement failed",
					zap.Int("row", vr.Row.Number),
					zap.Error(vr.Err))
			} else {
				logger.Debug("statement verified",
					zap.Int("row", vr.Row.Number),
					zap.String("verdict", string(rr.Verdict())))
			}
			if b.progress != nil {
				b.progress(done, len(rows), rr)
			}
		}
	}

	for i, ok := range completed {
		if ok {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = errors.New("not processed")
		}
		report.Rows[i] = model.RowResult{Row: rows[i], Error: err.Error()}
	}

	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.Counts = model.Tally(report.Rows)

	logger.Info("batch finished",
		zap.Int("factual", report.Counts.Factual),
		zap.Int("not_factual", report.Counts.NotFactual),
		zap.Int("subjective", report.Counts.Subjective),
		zap.Int("errors", report.Counts.Errors),
		zap.Duration("duration", report.Duration))

	return report
}

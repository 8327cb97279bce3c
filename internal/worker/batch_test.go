package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/verity/internal/model"
)

// stubVerifier answers from a table keyed by statement
type stubVerifier struct {
	verdicts map[string]model.Verdict
	errs     map[string]error
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	modes []model.BackendMode
}

func (s *stubVerifier) Verify(ctx context.Context, statement string, mode model.BackendMode) (*model.Result, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	s.mu.Lock()
	s.modes = append(s.modes, mode)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := s.errs[statement]; err != nil {
		return nil, err
	}
	v, ok := s.verdicts[statement]
	if !ok {
		v = model.VerdictFactual
	}
	return &model.Result{Statement: statement, Verdict: v}, nil
}

func rowsOf(statements ...string) []model.Row {
	rows := make([]model.Row, len(statements))
	for i, s := range statements {
		rows[i] = model.Row{Number: i + 1, Statement: s, Columns: map[string]string{"statement": s}}
	}
	return rows
}

func TestBatchRunner_PreservesOrder(t *testing.T) {
	verifier := &stubVerifier{
		verdicts: map[string]model.Verdict{
			"b": model.VerdictNotFactual,
			"c": model.VerdictSkipped,
		},
		delay: 5 * time.Millisecond,
	}
	runner := NewBatchRunner(verifier, 3, model.BackendRemote)

	statements := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	report := runner.Run(context.Background(), "input.csv", rowsOf(statements...))

	if len(report.Rows) != len(statements) {
		t.Fatalf("expected %d rows, got %d", len(statements), len(report.Rows))
	}
	for i, s := range statements {
		if report.Rows[i].Row.Statement != s {
			t.Errorf("row %d: expected %q, got %q", i, s, report.Rows[i].Row.Statement)
		}
	}
	if report.Rows[1].Verdict() != model.VerdictNotFactual {
		t.Errorf("expected NO for b, got %s", report.Rows[1].Verdict())
	}
	if report.Rows[2].Verdict() != model.VerdictSkipped {
		t.Errorf("expected SKIPPED_SUBJECTIVE for c, got %s", report.Rows[2].Verdict())
	}

	if report.Counts.Total != 8 || report.Counts.Factual != 6 || report.Counts.NotFactual != 1 || report.Counts.Subjective != 1 {
		t.Errorf("unexpected counts: %+v", report.Counts)
	}
	if _, err := uuid.Parse(report.RunID); err != nil {
		t.Errorf("expected a UUID run ID, got %q", report.RunID)
	}
	if report.Source != "input.csv" || report.Backend != model.BackendRemote {
		t.Errorf("unexpected report metadata: %s %s", report.Source, report.Backend)
	}
}

func TestBatchRunner_ErrorsAreDistinct(t *testing.T) {
	verifier := &stubVerifier{
		errs: map[string]error{"boom": errors.New("generation failed (remote backend): 503")},
	}
	runner := NewBatchRunner(verifier, 2, model.BackendRemote)

	report := runner.Run(context.Background(), "x", rowsOf("ok", "boom", "ok2"))

	failed := report.Rows[1]
	if failed.Verdict() != model.VerdictError {
		t.Errorf("expected ERROR verdict, got %s", failed.Verdict())
	}
	if !strings.Contains(failed.Error, "503") {
		t.Errorf("expected error text to be kept, got %q", failed.Error)
	}
	if report.Counts.Errors != 1 || report.Counts.NotFactual != 0 {
		t.Errorf("errors must not be counted as NO: %+v", report.Counts)
	}
	if verifier.calls.Load() != 3 {
		t.Errorf("expected the batch to continue past a failure, got %d calls", verifier.calls.Load())
	}
}

func TestBatchRunner_BoundedConcurrency(t *testing.T) {
	verifier := &stubVerifier{delay: 10 * time.Millisecond}
	runner := NewBatchRunner(verifier, 3, model.BackendLocal)

	runner.Run(context.Background(), "x", rowsOf("1", "2", "3", "4", "5", "6", "7", "8", "9", "10"))

	if got := verifier.maxSeen.Load(); got > 3 {
		t.Errorf("expected at most 3 concurrent verifications, saw %d", got)
	}
	for _, m := range verifier.modes {
		if m != model.BackendLocal {
			t.Fatalf("expected every statement to use the batch backend, got %s", m)
		}
	}
}

func TestBatchRunner_Timeout(t *testing.T) {
	verifier := &stubVerifier{delay: time.Second}
	runner := NewBatchRunner(verifier, 2, model.BackendRemote, WithTimeout(20*time.Millisecond))

	report := runner.Run(context.Background(), "x", rowsOf("slow"))

	if report.Rows[0].Verdict() != model.VerdictError {
		t.Errorf("expected timeout to surface as ERROR, got %s", report.Rows[0].Verdict())
	}
}

func TestBatchRunner_Cancelled(t *testing.T) {
	verifier := &stubVerifier{delay: 50 * time.Millisecond}
	runner := NewBatchRunner(verifier, 1, model.BackendRemote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := runner.Run(ctx, "x", rowsOf("a", "b", "c"))
	if len(report.Rows) != 3 {
		t.Fatalf("expected every input row in the report, got %d", len(report.Rows))
	}
	for i, rr := range report.Rows {
		if rr.Verdict() != model.VerdictError {
			t.Errorf("row %d: expected ERROR after cancellation, got %s", i, rr.Verdict())
		}
		if rr.Row.Statement == "" {
			t.Errorf("row %d: expected the input row to be kept", i)
		}
	}
}

func TestBatchRunner_Progress(t *testing.T) {
	var calls []int
	runner := NewBatchRunner(&stubVerifier{}, 2, model.BackendRemote,
		WithProgress(func(done, total int, row model.RowResult) {
			if total != 4 {
				t.Errorf("expected total 4, got %d", total)
			}
			calls = append(calls, done)
		}))

	runner.Run(context.Background(), "x", rowsOf("a", "b", "c", "d"))

	if len(calls) != 4 || calls[3] != 4 {
		t.Errorf("expected progress 1..4, got %v", calls)
	}
}

func TestBatchRunner_Empty(t *testing.T) {
	runner := NewBatchRunner(&stubVerifier{}, 2, model.BackendRemote)
	report := runner.Run(context.Background(), "x", nil)

	if report.Counts.Total != 0 || len(report.Rows) != 0 {
		t.Errorf("expected empty report, got %+v", report.Counts)
	}
}

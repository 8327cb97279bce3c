package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/verity/internal/dataset"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/worker"
)

var (
	concurrency  int
	batchOut     string
	batchJSON    string
	batchColumn  string
	batchBackend string
	rowTimeout   time.Duration
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file.csv>",
	Short: "Verify every statement in a CSV file",
	Long: `Batch verifies the statement column of a CSV file in parallel:
- Rows with an empty statement are skipped
- Each statement is verified independently; a failing row is reported with
  verdict ERROR and its message in the error column
- All original columns are kept in the output

Output columns: statement, verdict, error, then the remaining input columns.
Input columns already named verdict or error are written as input_verdict
and input_error.

Example:
  verity batch statements.csv
  verity batch statements.csv --out verdicts.csv --json report.json
  verity batch claims.csv --column claim --concurrency 8 --backend local`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchOut, "out", "", "output CSV path (default: <input>.verdicts.csv)")
	batchCmd.Flags().StringVar(&batchJSON, "json", "", "also write a JSON batch report to this path")
	batchCmd.Flags().StringVar(&batchColumn, "column", dataset.DefaultColumn, "name of the statement column")
	batchCmd.Flags().StringVar(&batchBackend, "backend", "", "generation backend: remote or local (default from config)")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "statements verified in parallel (default from config)")
	batchCmd.Flags().DurationVar(&rowTimeout, "timeout", 3*time.Minute, "timeout per statement")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 0, "total timeout for the batch (0 = none)")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the search cache")
}

func runBatch(cmd *cobra.Command, args []string) error {
	input := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := resolveBackend(batchBackend, cfg)
	if err != nil {
		return err
	}

	workers := concurrency
	if workers <= 0 {
		workers = cfg.Concurrency.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	table, err := dataset.ReadFile(input, batchColumn)
	if err != nil {
		return err
	}
	for _, s := range table.Skipped {
		logger.Info("row skipped", zap.Int("row", s.Number), zap.String("reason", s.Reason))
	}

	a, err := newApp(cfg, noCache)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, batchTimeout)
		defer cancel()
	}

	runner := worker.NewBatchRunner(a.verifier, workers, mode,
		worker.WithTimeout(rowTimeout),
		worker.WithLogger(logger.Named("batch")),
		worker.WithProgress(func(done, total int, row model.RowResult) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] row %d: %s\n", done, total, row.Row.Number, row.Verdict())
		}),
	)

	report := runner.Run(ctx, input, table.Rows)
	report.Skipped = table.Skipped

	out := batchOut
	if out == "" {
		out = defaultOutputPath(input)
	}

	var g errgroup.Group
	g.Go(func() error {
		return dataset.WriteFile(out, table.Column, report)
	})
	if batchJSON != "" {
		g.Go(func() error {
			return dataset.WriteJSONFile(batchJSON, report)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	printSummary(cmd, report, out)
	return nil
}

func printSummary(cmd *cobra.Command, report *model.BatchReport, out string) {
	w := cmd.ErrOrStderr()
	c := report.Counts
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Run:         %s\n", report.RunID)
	fmt.Fprintf(w, "  Statements:  %d (%d skipped as empty)\n", c.Total, len(report.Skipped))
	fmt.Fprintf(w, "  YES:         %d\n", c.Factual)
	fmt.Fprintf(w, "  NO:          %d\n", c.NotFactual)
	fmt.Fprintf(w, "  Subjective:  %d\n", c.Subjective)
	fmt.Fprintf(w, "  Errors:      %d\n", c.Errors)
	fmt.Fprintf(w, "  Duration:    %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output:      %s\n", out)
}

// defaultOutputPath puts verdicts next to the input: data.csv -> data.verdicts.csv
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".verdicts.csv"
}

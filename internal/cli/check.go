package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/verify"
)

var (
	checkBackend string
	checkExplain bool
	checkJSON    bool
	checkTimeout time.Duration
	noCache      bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <statement>",
	Short: "Verify a single statement",
	Long: `Check runs one statement through the verification pipeline:
- Skip it when it is subjective (opinion, hedge, value judgment)
- Break it into atomic yes/no questions
- Judge each question against web search evidence
- Answer YES only when every question is judged Yes

Example:
  verity check "Water boils at 100 degrees Celsius at sea level."
  verity check --backend local --explain "The Eiffel Tower is in Paris."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkBackend, "backend", "", "generation backend: remote or local (default from config)")
	checkCmd.Flags().BoolVar(&checkExplain, "explain", false, "print each question and its judgment")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the result as JSON")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 3*time.Minute, "overall timeout")
	checkCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the search cache")
}

func runCheck(cmd *cobra.Command, args []string) error {
	statement := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := resolveBackend(checkBackend, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, noCache)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	logger.Debug("checking statement",
		zap.String("backend", string(mode)),
		zap.Duration("timeout", checkTimeout))

	result, err := a.verifier.Verify(ctx, statement, mode)
	if err != nil {
		if verify.IsGenerationFailure(err) {
			return fmt.Errorf("verification failed: %w", err)
		}
		return err
	}

	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(cmd.OutOrStdout(), result, checkExplain)
	return nil
}

// printResult writes the verdict and, when explain is set, every question
func printResult(w io.Writer, result *model.Result, explain bool) {
	fmt.Fprintln(w, result.Verdict)
	if !explain {
		return
	}

	if result.Verdict == model.VerdictSkipped {
		fmt.Fprintln(w, "  statement is subjective; no questions were asked")
		return
	}
	if len(result.Questions) == 0 {
		fmt.Fprintln(w, "  no verifiable questions were produced")
		return
	}
	for i, q := range result.Questions {
		judgment := string(q.Judgment)
		if !q.Evaluated {
			judgment = "not evaluated"
		}
		fmt.Fprintf(w, "  %d. %s -> %s\n", i+1, q.Question, judgment)
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// subjectiveCmd runs only the subjectivity gate
var subjectiveCmd = &cobra.Command{
	Use:   "subjective <statement>",
	Short: "Report whether a statement is subjective",
	Long: `Subjective runs the subjectivity gate alone, without any generation or
search calls. It prints "subjective" with the matching rule, or "objective".

Example:
  verity subjective "I think this is the best movie ever."`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gate, err := buildGate(cfg.Subjectivity)
		if err != nil {
			return err
		}

		statement := strings.Join(args, " ")
		if match := gate.Match(statement); match != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "subjective (%s)\n", match)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "objective")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subjectiveCmd)
}

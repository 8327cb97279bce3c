package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is overridden at build time via -ldflags
var Version = "0.1.0"

var (
	cfgFile    string
	envFile    string
	verbose    bool
	logJSON    bool
	traceOut   string
	metricsOut string

	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verity",
	Short: "Verity - fact checking for natural-language statements",
	Long: `Verity decides whether a statement is factual.

Subjective statements (opinions, hedges, value judgments) are skipped.
Every other statement is broken into atomic yes/no questions, each question
is judged against web search evidence, and the statement is factual only
when every question is answered Yes.

Generation runs on a remote API model or on a locally hosted model; a local
model that is not available falls back to the remote one.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(cmd); err != nil {
			return err
		}
		if err := initConfig(); err != nil {
			return err
		}

		var err error
		logger, err = newLogger(viper.GetBool("output.verbose"), viper.GetBool("output.log_json"))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", zap.String("path", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "verity v%s\n", Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.verity/config.yaml)")
	flags.StringVar(&envFile, "env-file", "config.env", "dotenv file with API keys (ignored when missing)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&logJSON, "log-json", false, "log as JSON instead of console text")
	flags.StringVar(&traceOut, "trace-out", "", "write OpenTelemetry spans as JSON to this file")
	flags.StringVar(&metricsOut, "metrics-out", "", "write Prometheus metrics in textfile format on exit")

	_ = viper.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("output.log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("telemetry.trace_file", flags.Lookup("trace-out"))
	_ = viper.BindPFlag("telemetry.metrics_file", flags.Lookup("metrics-out"))

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger. Console output goes to stderr so
// stdout stays clean for results.
func newLogger(debug, jsonOutput bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !jsonOutput {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.DisableStacktrace = !debug
	return config.Build()
}

// initConfig reads in config file and ENV variables
func initConfig() error {
	if err := setDefaults(viper.GetViper()); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".verity"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// VERITY_SEARCH_MAX_RESULTS -> search.max_results
	viper.SetEnvPrefix("VERITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("llm.api_key")
	_ = viper.BindEnv("search.api_key")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadEnvFile exports KEY=value pairs from a dotenv file. Variables already
// set in the environment win. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", envFile, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

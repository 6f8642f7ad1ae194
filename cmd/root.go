package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/pkg/config"
	"github.com/killallgit/sensitive-data-api/pkg/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sensitive-data-api",
	Short: "Sensitive data classifier with active learning",
	Long: `Sensitive Data Classifier API - detects sensitive entities in text and learns from feedback

Text is scanned with a fixed set of patterns and a statistical model; the two
result sets are merged into one ranked list of entities. Reviewers correct
results through the feedback API and the corrections become training data for
the next model version.

Features:
  • Pattern and statistical entity detection with confidence merging
  • Feedback collection and curated training data
  • Background training cycles with evaluation metrics
  • Versioned model registry with manual promotion`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().Bool("json-logs", false, "force JSON formatted logs")
}

// loadConfig reads configuration and builds the logger. Only commands that
// need them call it, so help and version work without a config file.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	if err := config.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		cfg.Logging.Format = "json"
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

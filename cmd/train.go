package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/services/training"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// trainCmd runs one training cycle in the foreground
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training cycle",
	Long: `Run a single gather, train, evaluate and register cycle and print its metrics.

The new model version is registered inactive. Promote it through the API
once its metrics have been reviewed.

Runs left unfinished by a crashed process block their lineage. With redis
locking they are failed before the cycle starts; otherwise pass --recover,
and only when no server is training the same database.

Example:
  sensitive-data-api train
  sensitive-data-api train --lineage default --iterations 20 --seed 7
  sensitive-data-api train --recover`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	f := trainCmd.Flags()
	f.String("lineage", "", "model lineage (overrides config)")
	f.Int("iterations", 0, "training iterations (overrides config)")
	f.Int("batch-size", 0, "examples per batch (overrides config)")
	f.Float64("dropout", -1, "dropout rate (overrides config)")
	f.Float64("test-split", -1, "held out fraction (overrides config)")
	f.Int("min-samples", 0, "minimum examples required (overrides config)")
	f.Int64("seed", 0, "shuffle and split seed (overrides config)")
	f.Int("limit", 0, "maximum examples to collect (0 = all)")
	f.Bool("no-feedback", false, "exclude examples derived from feedback")
	f.Bool("no-datasets", false, "exclude manual and imported examples")
	f.Bool("recover", false, "fail runs left unfinished by a crashed process first")
}

// cycleFromFlags overlays the flags the user set onto the configured cycle
func cycleFromFlags(cmd *cobra.Command, cfg training.CycleConfig) training.CycleConfig {
	f := cmd.Flags()
	if f.Changed("lineage") {
		cfg.Lineage, _ = f.GetString("lineage")
	}
	if f.Changed("iterations") {
		cfg.Iterations, _ = f.GetInt("iterations")
	}
	if f.Changed("batch-size") {
		cfg.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("dropout") {
		cfg.Dropout, _ = f.GetFloat64("dropout")
	}
	if f.Changed("test-split") {
		cfg.TestSplit, _ = f.GetFloat64("test-split")
	}
	if f.Changed("min-samples") {
		cfg.MinSamples, _ = f.GetInt("min-samples")
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("limit") {
		cfg.Limit, _ = f.GetInt("limit")
	}
	if noFeedback, _ := f.GetBool("no-feedback"); noFeedback {
		cfg.IncludeFeedback = false
	}
	if noDatasets, _ := f.GetBool("no-datasets"); noDatasets {
		cfg.IncludeDatasets = false
	}
	return cfg
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// a local lock cannot see a server training in another process
	if recoverRuns, _ := cmd.Flags().GetBool("recover"); recoverRuns || cfg.Redis.Enabled {
		if err := app.recoverInterrupted(ctx); err != nil {
			return err
		}
	}

	cycle := cycleFromFlags(cmd, app.cycleConfig)
	cycle.CreatedBy = "cli"
	if err := cycle.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	last := -10
	cycle.Progress = func(percent int) {
		if percent/10 != last/10 {
			fmt.Fprintf(out, "progress: %d%%\n", percent)
		}
		last = percent
	}

	run, err := app.pipeline.RunTrainingCycle(ctx, cycle)
	if err != nil {
		if run != nil {
			log.Error("training run failed",
				zap.Uint("run_id", run.ID),
				zap.String("code", string(apperrors.GetCode(err))))
		}
		return err
	}

	fmt.Fprintln(out, "Training run completed")
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Run:          %d (%s)\n", run.ID, run.UUID)
	fmt.Fprintf(out, "Lineage:      %s\n", run.Lineage)
	fmt.Fprintf(out, "Samples:      %d train / %d test\n", run.TrainSamples, run.TestSamples)
	fmt.Fprintf(out, "Precision:    %.4f\n", run.Precision)
	fmt.Fprintf(out, "Recall:       %.4f\n", run.Recall)
	fmt.Fprintf(out, "F1:           %.4f\n", run.F1)
	if run.ModelVersionID != nil {
		fmt.Fprintf(out, "Model:        %d (inactive until promoted)\n", *run.ModelVersionID)
	}
	return nil
}

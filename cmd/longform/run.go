package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/longform/internal/batch"
	"github.com/jackzampolin/longform/internal/checkpoint"
	"github.com/jackzampolin/longform/internal/config"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/output"
	"github.com/jackzampolin/longform/internal/render"
)

var (
	runModel       string
	runDataset     string
	runOutput      string
	runGenerator   string
	runConcurrency int
	runWatch       bool
	runRenderDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate every document in a dataset",
	Long: `Generate every document in a dataset and write the results as a JSON array
in dataset order.

Finished documents are checkpointed under
<output_root>/<model>/<generator>_checkpoints_<dataset>/ so a rerun skips
them. Documents that fail after every retry are written with status
"degraded" and are regenerated on the next run.

Examples:
  longform run --model gpt-4o-mini --dataset data/diary.json -o out/diary.json
  longform run --generator baseline --dataset data/menu.json -o out/menu.json
  longform run --dataset data/all.json -o out/all.json --render-dir out/html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := services(cmd)
		if err != nil {
			return err
		}
		logger := s.Logger

		cfg := *s.Config.Get()
		gen := cfg.Generation
		if cmd.Flags().Changed("model") {
			gen.Model = runModel
		}
		if cmd.Flags().Changed("generator") {
			gen.Generator = runGenerator
		}
		if cmd.Flags().Changed("concurrency") {
			gen.Concurrency = runConcurrency
		}
		cfg.Generation = gen
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !s.Registry.HasModel(gen.Model) {
			return fmt.Errorf("model %q is not served by any enabled backend (have %v)", gen.Model, s.Registry.Models())
		}

		reqs, err := document.LoadDataset(runDataset)
		if err != nil {
			return fmt.Errorf("%w: %w", batch.ErrFatal, err)
		}

		runID := uuid.NewString()
		stack, err := s.NewStack(runID, gen)
		if err != nil {
			return err
		}
		generator, err := stack.Generators.Lookup(gen.Generator)
		if err != nil {
			return err
		}

		dir := checkpoint.Dir(cfg.Paths.OutputRoot, gen.Model, generator.Name(), document.DatasetName(runDataset))
		store, err := checkpoint.Open(dir, logger)
		if err != nil {
			return fmt.Errorf("%w: %w", batch.ErrFatal, err)
		}

		if runWatch && s.Config.File() != "" {
			s.Config.WatchConfig()
		}

		logger.Info("starting run",
			"run", runID,
			"generator", generator.Name(),
			"model", gen.Model,
			"dataset", runDataset,
			"documents", len(reqs),
			"concurrency", gen.Concurrency,
			"checkpoints", store.Dir())

		orch := batch.New(batch.Config{
			Generator:        generator,
			Checkpoints:      store,
			Recorder:         stack.Recorder,
			DocumentAttempts: gen.DocumentAttempts,
			RetryDelay:       gen.DocumentRetryDelay(),
			RunID:            runID,
			Logger:           logger,
		})
		results, summary, err := orch.Run(ctx, reqs)
		if err != nil {
			return err
		}

		if err := batch.WriteOutput(runOutput, results); err != nil {
			return err
		}
		logger.Info("wrote output", "path", runOutput, "peak_in_flight", stack.Coordinator.Stats().Peak)

		if runRenderDir != "" {
			files, err := render.WriteHTML(runRenderDir, results)
			if err != nil {
				return err
			}
			logger.Info("rendered documents", "dir", runRenderDir, "files", len(files))
		}

		return output.Write(cmd.OutOrStdout(), outputFormat, summary)
	},
}

func init() {
	defaults := config.DefaultConfig().Generation
	runCmd.Flags().StringVar(&runModel, "model", defaults.Model, "backend model identifier")
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "dataset JSON file")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output JSON file")
	runCmd.Flags().StringVar(&runGenerator, "generator", defaults.Generator, "generator: cogwriter or baseline")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", defaults.Concurrency, "maximum in-flight backend calls")
	runCmd.Flags().BoolVar(&runWatch, "watch", true, "reload backend config when the config file changes")
	runCmd.Flags().StringVar(&runRenderDir, "render-dir", "", "also render each document as HTML into this directory")
	_ = runCmd.MarkFlagRequired("dataset")
	_ = runCmd.MarkFlagRequired("output")
}

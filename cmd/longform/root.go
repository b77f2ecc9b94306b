package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/longform/internal/config"
	"github.com/jackzampolin/longform/internal/home"
	"github.com/jackzampolin/longform/internal/output"
	"github.com/jackzampolin/longform/internal/svcctx"
	"github.com/jackzampolin/longform/version"
)

// skipServices marks commands that run without config, ledger or backends.
const skipServices = "longform/skip-services"

var (
	cfgFile      string
	homeDir      string
	formatFlag   string
	logLevel     string
	logFormat    string
	outputFormat output.Format
)

var rootCmd = &cobra.Command{
	Use:   "longform",
	Short: "Long-form document generation with plan-then-refine pipelines",
	Long: `Longform generates long structured documents (diaries, menus, skyscraper
floor plans, urban plans) from benchmark prompts.

The cogwriter generator plans every unit of a document, drafts each unit
in parallel and edits it toward its word target. The baseline generator
makes one call per document. Runs checkpoint every finished document so
an interrupted run resumes without repeating work.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if outputFormat, err = output.ParseFormat(formatFlag); err != nil {
			return err
		}
		logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if cmd.Annotations[skipServices] != "" {
			return nil
		}

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if cfgFile == "" && h.ConfigExists() {
			cfgFile = h.ConfigPath()
		}
		mgr, err := config.NewManager(cfgFile, logger)
		if err != nil {
			return err
		}
		svcs, err := svcctx.Open(mgr, h, logger)
		if err != nil {
			return err
		}
		logger.Debug("services ready", "config", mgr.File(), "home", h.Path(), "models", svcs.Registry.Models())
		cmd.SetContext(svcctx.WithServices(cmd.Context(), svcs))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if err := svcctx.ServicesFrom(cmd.Context()).Close(); err != nil {
			return fmt.Errorf("failed to close services: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.longform/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "longform home directory (default: ~/.longform)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&formatFlag, "format", "f", "yaml", "result format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "auto", "log format: auto, text or json",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(promptsCmd)
}

// services returns the Services attached by the root pre-run.
func services(cmd *cobra.Command) (*svcctx.Services, error) {
	s := svcctx.ServicesFrom(cmd.Context())
	if s == nil {
		return nil, fmt.Errorf("%s: services not initialised", cmd.CommandPath())
	}
	return s, nil
}

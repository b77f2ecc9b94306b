package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/longform/internal/llmcall"
	"github.com/jackzampolin/longform/internal/output"
)

var (
	statusRun string
	callsRun  string
	callsSite string
	callsDoc  string
	callsFail bool
	callsMax  int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarise backend calls and document outcomes for a run",
	Long: `Summarise the call ledger for one run: calls, failures, attempts and
latency per call site, and documents per status.

Without --run the most recent run is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := services(cmd)
		if err != nil {
			return err
		}

		runID := statusRun
		if runID == "" {
			if runID, err = s.Ledger.LatestRun(ctx); err != nil {
				return err
			}
			if runID == "" {
				return fmt.Errorf("no runs recorded in %s", s.Home.LedgerPath())
			}
		}

		summary, err := s.Ledger.Summary(ctx, runID)
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, summary)
	},
}

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List recorded backend calls, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := services(cmd)
		if err != nil {
			return err
		}
		filter := llmcall.QueryFilter{
			RunID:    callsRun,
			Document: callsDoc,
			Site:     callsSite,
			Limit:    callsMax,
		}
		if callsFail {
			failed := false
			filter.Success = &failed
		}
		calls, err := s.Ledger.ListCalls(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, calls)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRun, "run", "", "run id (default: latest)")

	callsCmd.Flags().StringVar(&callsRun, "run", "", "only calls from this run")
	callsCmd.Flags().StringVar(&callsDoc, "document", "", "only calls for this document label")
	callsCmd.Flags().StringVar(&callsSite, "site", "", "only calls from this site (plan_draft, plan_revise, unit_draft, unit_edit, baseline)")
	callsCmd.Flags().BoolVar(&callsFail, "failed", false, "only failed calls")
	callsCmd.Flags().IntVar(&callsMax, "limit", 50, "maximum calls to list")
}

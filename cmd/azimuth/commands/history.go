package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List persisted runs, or show one run's execution log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(cmd.Context(), runID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func runHistory(ctx context.Context, runID string, limit int) error {
	env, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	if env.store == nil {
		return fmt.Errorf("history persistence is disabled (no history.path configured)")
	}

	if runID == "" {
		return listRuns(ctx, env, limit)
	}
	return showRun(ctx, env, runID)
}

func listRuns(ctx context.Context, env *runtime, limit int) error {
	runs, err := env.store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %s  %d/%d achieved",
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.Duration.Round(time.Second),
			run.Achieved, run.Total)
		if run.Failed > 0 || run.Aborted > 0 {
			fmt.Printf("  (%d failed, %d aborted)", run.Failed, run.Aborted)
		}
		fmt.Println()
	}
	return nil
}

func showRun(ctx context.Context, env *runtime, runID string) error {
	entries, err := env.store.GetHistory(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		switch e.Kind {
		case "attempt":
			fmt.Printf("%4d  %s  attempt %d via %s (exit %d, %s)\n",
				e.Seq, e.GoalID, e.Attempt, e.Tool, e.Exit, e.Elapsed.Round(time.Millisecond))
		case "evaluation":
			fmt.Printf("%4d  %s  evaluated %s (confidence %.1f)\n",
				e.Seq, e.GoalID, e.Status, e.Confidence)
		case "recovery":
			fmt.Printf("%4d  %s  %s -> %s: %s\n",
				e.Seq, e.GoalID, e.Classification, e.Decision, e.Reason)
		case "status":
			fmt.Printf("%4d  %s  now %s %s\n", e.Seq, e.GoalID, e.Status, e.Reason)
		}
	}
	return nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <request>",
		Short: "Show the goal graph for a request without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), args[0])
		},
	}
}

func runPlan(ctx context.Context, request string) error {
	env, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer env.close(ctx)
	ctx = telemetry.WithContext(ctx, env.logger)

	graph, err := env.parser.Parse(ctx, request)
	if err != nil {
		return fmt.Errorf("could not plan request: %w", err)
	}
	return printPlan(graph)
}

func printPlan(graph *engine.GoalGraph) error {
	plan := engine.NewDependencyScheduler().Plan(graph)

	if jsonOutput {
		out := struct {
			Goals   []*engine.Goal `json:"goals"`
			Batches [][]string     `json:"batches"`
		}{Goals: graph.Goals(), Batches: plan.Batches}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%d goals in %d batches:\n", graph.Len(), len(plan.Batches))
	for i, batch := range plan.Batches {
		fmt.Printf("\nBatch %d (parallel):\n", i+1)
		for _, id := range batch {
			goal := graph.Goal(id)
			line := fmt.Sprintf("  %s (%s): %s", goal.ID, goal.Type, goal.Name)
			if len(goal.DependencyIDs) > 0 {
				line += " <- " + strings.Join(goal.DependencyIDs, ", ")
			}
			fmt.Println(line)
		}
	}
	return nil
}

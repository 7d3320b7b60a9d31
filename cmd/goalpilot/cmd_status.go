package main

import (
	"fmt"
	"time"

	"goalpilot/internal/goal"

	"github.com/spf13/cobra"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the goal queue, active goal and run metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		snap := eng.store.Snapshot()

		if snap.CurrentGoal != nil {
			g := snap.CurrentGoal
			fmt.Printf("Active:    %s %q (run %d, %d steps)\n", g.ID, g.Title, g.RunCount, len(g.Steps))
		} else {
			fmt.Println("Active:    none")
		}

		fmt.Printf("Queued:    %d\n", len(snap.Queue))
		for _, g := range snap.Queue {
			fmt.Printf("  %s  %-40q due %s\n", g.ID, g.Title, g.DueAt.Format(time.RFC3339))
		}

		fmt.Printf("History:   %d (showing last %d)\n", len(snap.History), statusHistory)
		start := len(snap.History) - statusHistory
		if start < 0 {
			start = 0
		}
		for _, g := range snap.History[start:] {
			fmt.Printf("  %s  %-9s %q\n", g.ID, g.Status, g.Title)
			if g.Status == goal.StatusFailed && g.Result != "" {
				fmt.Printf("             error: %s\n", g.Result)
			}
		}

		m := snap.Meta
		fmt.Printf("Runs:      %d total, %d completed, %d consecutive failures\n",
			m.TotalRuns, m.CompletedGoals, m.ConsecutiveFailures)
		if !m.LastRunAt.IsZero() {
			fmt.Printf("Last run:  %s\n", m.LastRunAt.Format(time.RFC3339))
		}
		if m.LastFailure != "" {
			fmt.Printf("Last fail: %s\n", m.LastFailure)
		}
		fmt.Printf("Knowledge: %d documents\n", eng.index.Len())
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 10, "how many history entries to show")
}

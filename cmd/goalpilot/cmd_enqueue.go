package main

import (
	"fmt"
	"strings"
	"time"

	"goalpilot/internal/goal"

	"github.com/spf13/cobra"
)

var (
	enqueueTitle   string
	enqueuePrompt  string
	enqueueChannel string
	enqueueDueIn   time.Duration
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [text...]",
	Short: "Add a goal to the queue",
	Long: `Enqueues a goal for the next run of the loop. Plain text becomes
both title and prompt; --title and --prompt override the parts
separately.

Example:
  goalpilot enqueue "Summarize the pricing page"
  goalpilot enqueue --title "Weekly report" --prompt "Collect last week's numbers" --due-in 2h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := goal.EnqueueRequest{
			Title:   enqueueTitle,
			Prompt:  enqueuePrompt,
			Text:    strings.TrimSpace(strings.Join(args, " ")),
			Channel: enqueueChannel,
		}
		if enqueueDueIn > 0 {
			due := time.Now().Add(enqueueDueIn)
			req.DueAt = &due
		}

		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		g, err := eng.store.Enqueue(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("Enqueued goal %s: %q (due %s)\n", g.ID, g.Title, g.DueAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueTitle, "title", "", "goal title")
	enqueueCmd.Flags().StringVar(&enqueuePrompt, "prompt", "", "model-facing prompt (defaults to title)")
	enqueueCmd.Flags().StringVar(&enqueueChannel, "channel", "manual", "provenance tag")
	enqueueCmd.Flags().DurationVar(&enqueueDueIn, "due-in", 0, "delay before the goal becomes eligible")
}

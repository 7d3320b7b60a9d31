package main

import (
	"fmt"
	"strings"

	"goalpilot/internal/retrieval"

	"github.com/spf13/cobra"
)

var (
	knowledgeK        int
	knowledgeMinScore float64
	knowledgeDomain   string
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and manage the retrieval index",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add [text...]",
	Short: "Index a text snippet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		var meta map[string]string
		if knowledgeDomain != "" {
			meta = map[string]string{"domain": knowledgeDomain}
		}

		doc, err := eng.index.Add(ctx, strings.Join(args, " "), meta)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed document %s (%d stored)\n", doc.ID, eng.index.Len())
		return nil
	},
}

var knowledgeQueryCmd = &cobra.Command{
	Use:   "query [text...]",
	Short: "Search the index by similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		matches, err := eng.index.Query(ctx, strings.Join(args, " "), retrieval.QueryOptions{
			K:        knowledgeK,
			MinScore: knowledgeMinScore,
		})
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%.3f  %s\n", m.Score, m.Doc.Text)
		}
		return nil
	},
}

var knowledgeRefreshCmd = &cobra.Command{
	Use:   "refresh-domain [domain] [text...]",
	Short: "Replace all documents of a domain with new snippets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		if err := eng.index.ReplaceDomain(ctx, args[0], args[1:]); err != nil {
			return err
		}
		fmt.Printf("Domain %q refreshed with %d documents (%d stored)\n", args[0], len(args)-1, eng.index.Len())
		return nil
	},
}

var knowledgeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the retrieval index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		if err := eng.index.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	knowledgeQueryCmd.Flags().IntVar(&knowledgeK, "k", 5, "how many matches to return")
	knowledgeQueryCmd.Flags().Float64Var(&knowledgeMinScore, "min-score", 0, "minimum cosine similarity")
	knowledgeAddCmd.Flags().StringVar(&knowledgeDomain, "domain", "", "tag the document with a domain")

	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeQueryCmd)
	knowledgeCmd.AddCommand(knowledgeRefreshCmd)
	knowledgeCmd.AddCommand(knowledgeClearCmd)
}

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show role bindings and registered adapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		fmt.Printf("Adapters:  %s\n", strings.Join(eng.router.ListProviders(), ", "))

		cfg := eng.router.GetConfig()
		roles := make([]string, 0, len(cfg.Roles))
		for role := range cfg.Roles {
			roles = append(roles, role)
		}
		sort.Strings(roles)

		fmt.Println("Roles:")
		for _, role := range roles {
			b := cfg.Roles[role]
			fmt.Printf("  %-12s %s/%s (temp=%.2f, max_tokens=%d)\n",
				role, b.Provider, b.Model, b.Params.Temperature, b.Params.MaxTokens)
		}
		return nil
	},
}

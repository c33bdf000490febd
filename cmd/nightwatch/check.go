package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/config"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and connectivity to each external collaborator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}
}

// runCheck mirrors the original CLI's per-capability OK/FAIL report:
// config first, then each external collaborator, dialing out where a
// cheap read-only probe exists.
func runCheck(ctx context.Context) error {
	fmt.Println("NightWatch config check")
	fmt.Println()

	log := setupLogger(verbose)
	deps, cfg, err := buildDeps(log)
	if err != nil {
		fmt.Printf("  [FAIL] config: %v\n", err)
		return err
	}
	fmt.Printf("  [OK] config loaded from %s\n", configDir)

	for _, c := range config.NewValidator(cfg).CheckCapabilities() {
		if !c.OK {
			fmt.Printf("  [FAIL] %s: %v\n", c.Name, c.Err)
			continue
		}
		fmt.Printf("  [OK] %s: credentials present\n", c.Name)
	}

	if deps.Observability != nil {
		if rows, err := deps.Observability.Query(ctx, "SELECT count(*) FROM TransactionError SINCE 1 hour ago"); err != nil {
			fmt.Printf("  [FAIL] observability query: %v\n", err)
		} else {
			fmt.Printf("  [OK] observability query: %d row(s)\n", len(rows))
		}
	}

	if deps.CodeHost != nil {
		if _, err := deps.CodeHost.ListDirectory(ctx, "."); err != nil {
			fmt.Printf("  [FAIL] code host: %v\n", err)
		} else {
			fmt.Printf("  [OK] code host: %s\n", cfg.Credentials.GitHubRepo)
		}
	}

	if deps.Provider != nil {
		req := capability.MessageRequest{
			Model:     cfg.Analysis.Model,
			MaxTokens: 10,
			Messages:  []capability.ConversationMessage{{Role: "user", Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: "ping"}}}},
		}
		if _, err := deps.Provider.CreateMessage(ctx, req); err != nil {
			fmt.Printf("  [FAIL] llm: %v\n", err)
		} else {
			fmt.Printf("  [OK] llm: %s\n", cfg.Analysis.Model)
		}
	}

	fmt.Println()
	fmt.Println("Done.")
	return nil
}

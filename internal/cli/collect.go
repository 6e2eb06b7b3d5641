package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dares/internal/model"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Enumerate the items of every configured entity type",
	Long: `Collect follows the WhatLinksHere list pages of each configured type,
checkpointing the discovered pages so an interrupted crawl resumes where it
stopped, and saves the listed item identifiers.

Example:
  dares collect
  dares collect --project Q5 --workers 4`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	printBanner("DARES Collect", e)
	links, err := collectLinks(ctx, e)
	if err != nil {
		return err
	}

	total := 0
	for _, ids := range links {
		total += len(ids)
	}
	fmt.Fprintf(os.Stderr, "\n✓ Collected %d items over %d types\n", total, len(links))
	return nil
}

// collectLinks crawls every configured type and saves its identifier list.
// It fails only when no type could be collected.
func collectLinks(ctx context.Context, e *env) (map[string][]string, error) {
	types := typeIDs(e.cfg.Entities)
	fmt.Fprintf(os.Stderr, "⚙️  Collecting %d entity types...\n", len(types))

	links := make(map[string][]string, len(types))
	for _, res := range e.collector().CollectAll(ctx, types) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.EntityType, res.Err)
			continue
		}
		if err := e.checkpoints.SaveLinks(model.EntityLinks{EntityType: res.EntityType, IDs: res.IDs}); err != nil {
			return nil, fmt.Errorf("save links of %s: %w", res.EntityType, err)
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %d pages, %d items\n", res.EntityType, len(res.Checkpoint.URLs), len(res.IDs))
		links[res.EntityType] = res.IDs
	}
	if len(links) == 0 && len(types) > 0 {
		return nil, fmt.Errorf("no entity type could be collected")
	}
	return links, nil
}

func printBanner(title string, e *env) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Project:      %s\n", e.dir)
	fmt.Fprintf(os.Stderr, "  Language:     %s (fallback %s)\n", e.cfg.Language, e.cfg.FallbackLanguage)
	fmt.Fprintf(os.Stderr, "  Types:        %v\n", typeIDs(e.cfg.Entities))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", e.cfg.Workers)
	fmt.Fprintf(os.Stderr, "\n")
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/store"
	"github.com/ppiankov/dares/internal/worker"
)

var (
	skipCollect bool
	idsFile     string
	idsType     string
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Collect, enrich and align entities, then export the corpus",
	Long: `Build runs the whole corpus construction:
- Collect (or resume collecting) the items of every configured type
- Fetch each item's claims and Wikipedia article
- Resolve labels and relation values
- Align relation values with article sentences
- Sample "Other" negatives when enabled
- Export the labeled examples

Example:
  dares build
  dares build --skip-collect
  dares build --ids items.txt --type Q5`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&skipCollect, "skip-collect", false, "use the identifier lists saved by a previous collect")
	buildCmd.Flags().StringVar(&idsFile, "ids", "", "process the item identifiers listed in this file instead of crawling")
	buildCmd.Flags().StringVar(&idsType, "type", "", "entity type of the --ids items (default: first configured type)")
	addCorpusFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	applyCorpusFlags(cmd, e.cfg)

	// Fail on a conflicting negative policy before any network traffic
	enricher, err := e.enricher()
	if err != nil {
		return err
	}

	printBanner("DARES Build", e)

	links, err := buildInput(ctx, e)
	if err != nil {
		return err
	}

	start := time.Now()
	var records []*model.EntityRecord
	drops := make(map[model.DropReason]int)
	for _, t := range typeIDs(e.cfg.Entities) {
		ids, ok := links[t]
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stderr, "⚙️  Enriching %d items of %s...\n", len(ids), t)
		res := enricher.Run(ctx, t, ids)
		records = append(records, res.Records...)
		for _, d := range res.Drops {
			drops[d.Reason]++
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %d entities kept, %d dropped\n", t, len(res.Records), len(res.Drops))
	}

	if err := store.SaveRelationNames(e.dir, model.RelationNames(e.cfg.Entities)); err != nil {
		return fmt.Errorf("save relation names: %w", err)
	}
	if err := saveRunConfig(e.dir, e.cfg); err != nil {
		return err
	}

	path, summary, err := writeCorpus(ctx, e.cfg, e.dir, records)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Build Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Entities:     %d\n", len(records))
	printDrops(drops)
	fmt.Fprintf(os.Stderr, "  Duration:     %v\n", time.Since(start).Round(time.Second))
	fmt.Fprintf(os.Stderr, "  Corpus:       %s\n", path)
	printSummary(summary)
	return nil
}

// buildInput returns the identifiers to enrich per type
func buildInput(ctx context.Context, e *env) (map[string][]string, error) {
	if idsFile != "" {
		t := idsType
		if t == "" {
			t = e.cfg.Entities[0].Type
		}
		if _, ok := model.FindType(e.cfg.Entities, t); !ok {
			return nil, fmt.Errorf("type %s is not configured", t)
		}
		ids, err := worker.ReadIDsFromFile(idsFile)
		if err != nil {
			return nil, err
		}
		return map[string][]string{t: ids}, nil
	}

	if !skipCollect {
		return collectLinks(ctx, e)
	}

	links := make(map[string][]string)
	for _, t := range typeIDs(e.cfg.Entities) {
		l, err := e.checkpoints.LoadLinks(t)
		if err != nil {
			return nil, fmt.Errorf("%w (run 'dares collect' first)", err)
		}
		links[t] = l.IDs
	}
	return links, nil
}

// saveRunConfig records the configuration the corpus was built with
func saveRunConfig(dir string, cfg *model.Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	return store.WriteFileAtomic(filepath.Join(dir, "dares_config.json"), data)
}

func printDrops(drops map[model.DropReason]int) {
	reasons := make([]string, 0, len(drops))
	for r := range drops {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(os.Stderr, "  Dropped:      %d (%s)\n", drops[model.DropReason(r)], r)
	}
}

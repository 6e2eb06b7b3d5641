package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dares/internal/corpus"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/store"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the corpus from stored entity snapshots",
	Long: `Export rebuilds the corpus from the snapshots of a previous build,
without any network access. Filters can differ from the build's.

Example:
  dares export --format sqlite --out corpus.db
  dares export --remove-no-match --relation placeOfBirth --relation dateOfBirth`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addCorpusFlags(exportCmd)
}

func addCorpusFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "corpus format: ndjson or sqlite (default from config)")
	cmd.Flags().String("out", "", "corpus path (default: <project>/corpus.<format>)")
	cmd.Flags().Bool("remove-no-match", false, "drop examples without a source mention")
	cmd.Flags().StringSlice("relation", nil, "keep only this relation label (repeatable; Other is always kept)")
}

// applyCorpusFlags overrides the corpus configuration with the flags set on cmd
func applyCorpusFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Corpus.Format, _ = flags.GetString("format")
	}
	if flags.Changed("out") {
		cfg.Corpus.Path, _ = flags.GetString("out")
	}
	if flags.Changed("remove-no-match") {
		cfg.Corpus.RemoveNoMatch, _ = flags.GetBool("remove-no-match")
	}
	if flags.Changed("relation") {
		cfg.Corpus.Relations, _ = flags.GetStringSlice("relation")
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	applyCorpusFlags(cmd, e.cfg)
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	records, err := loadSnapshots(ctx, e.snapshots, typeIDs(e.cfg.Entities))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d entity snapshots\n", len(records))

	path, summary, err := writeCorpus(ctx, e.cfg, e.dir, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote corpus: %s\n", path)
	printSummary(summary)
	return nil
}

// loadSnapshots reads every stored record of types, in type then id order
func loadSnapshots(ctx context.Context, s store.SnapshotStore, types []string) ([]*model.EntityRecord, error) {
	var records []*model.EntityRecord
	for _, t := range types {
		ids, err := s.List(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("list snapshots of %s: %w", t, err)
		}
		for _, id := range ids {
			rec, err := s.Load(ctx, t, id)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// corpusPath returns the configured corpus path or the project default
func corpusPath(cfg model.CorpusConfig, dir string) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	ext := "ndjson"
	if cfg.Format == "sqlite" {
		ext = "db"
	}
	return filepath.Join(dir, "corpus."+ext)
}

// writeCorpus filters records into rows and writes them in the configured format
func writeCorpus(ctx context.Context, cfg *model.Config, dir string, records []*model.EntityRecord) (string, []corpus.RelationCount, error) {
	rows := corpus.Rows(records, corpus.FilterFromConfig(cfg.Corpus))
	path := corpusPath(cfg.Corpus, dir)

	w, err := corpus.Open(cfg.Corpus.Format, path)
	if err != nil {
		return "", nil, err
	}
	if err := w.Write(ctx, rows); err != nil {
		_ = w.Close()
		return "", nil, fmt.Errorf("write corpus: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("close corpus: %w", err)
	}
	return path, corpus.Summary(rows), nil
}

func printSummary(summary []corpus.RelationCount) {
	total := 0
	for _, c := range summary {
		total += c.Rows
	}
	fmt.Fprintf(os.Stderr, "  Examples:     %d\n", total)
	for _, c := range summary {
		fmt.Fprintf(os.Stderr, "    %-24s %d\n", c.Relation, c.Rows)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

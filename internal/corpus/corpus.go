package corpus

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/dares/internal/model"
)

// Row is one training instance of the exported corpus
type Row struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Relation   string `json:"relation"`
	Sentence   string `json:"sentence"`
	Source     string `json:"source"`
	SourceRole string `json:"source_role,omitempty"`
	Target     string `json:"target"`
	TargetRole string `json:"target_role,omitempty"`
}

// Filter selects the rows that enter the corpus
type Filter struct {
	RemoveNoMatch bool     // Drop rows without a source mention
	Relations     []string // Keep only these relation labels; empty keeps all
}

// FilterFromConfig maps the corpus configuration onto a filter
func FilterFromConfig(cfg model.CorpusConfig) Filter {
	return Filter{RemoveNoMatch: cfg.RemoveNoMatch, Relations: cfg.Relations}
}

func (f Filter) keep(r Row) bool {
	if f.RemoveNoMatch && r.Source == model.NoMatch {
		return false
	}
	if len(f.Relations) == 0 || r.Relation == model.Other {
		return true
	}
	for _, rel := range f.Relations {
		if rel == r.Relation {
			return true
		}
	}
	return false
}

// Rows flattens records into filtered corpus rows, in record then relation
// then example order
func Rows(records []*model.EntityRecord, f Filter) []Row {
	var rows []Row
	for _, rec := range records {
		for _, p := range rec.Properties {
			for _, ex := range p.Examples {
				r := Row{
					EntityID:   rec.ID,
					EntityType: rec.Type,
					Relation:   ex.Relation,
					Sentence:   ex.Sentence,
					Source:     ex.Source,
					SourceRole: ex.SourceRole,
					Target:     ex.Target,
					TargetRole: ex.TargetRole,
				}
				if f.keep(r) {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

// Writer persists corpus rows
type Writer interface {
	Write(ctx context.Context, rows []Row) error
	Close() error
}

// Open creates the writer for format at path
func Open(format, path string) (Writer, error) {
	switch format {
	case "", "ndjson":
		return NewNDJSONWriter(path)
	case "sqlite":
		return NewSQLiteWriter(path)
	default:
		return nil, fmt.Errorf("unknown corpus format %q", format)
	}
}

// RelationCount is the number of rows of one relation
type RelationCount struct {
	Relation string
	Rows     int
}

// Summary counts rows per relation, most frequent first
func Summary(rows []Row) []RelationCount {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Relation]++
	}
	out := make([]RelationCount, 0, len(counts))
	for rel, n := range counts {
		out = append(out, RelationCount{Relation: rel, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		return out[i].Relation < out[j].Relation
	})
	return out
}

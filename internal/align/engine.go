package align

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/dares/internal/model"
)

// Scorer rates how well value occurs in sentence, from 0 to 100
type Scorer func(sentence, value string) float64

// Similarity scores every sentence (row) against every value (column) with
// PartialRatio. Cells below cutoff are zeroed.
func Similarity(sentences, values []string, cutoff float64) [][]float64 {
	return similarity(PartialRatio, sentences, values, cutoff)
}

func similarity(score Scorer, sentences, values []string, cutoff float64) [][]float64 {
	matrix := make([][]float64, len(sentences))
	for i, sent := range sentences {
		row := make([]float64, len(values))
		for j, v := range values {
			s := score(sent, v)
			if s < cutoff {
				s = 0
			}
			row[j] = s
		}
		matrix[i] = row
	}
	return matrix
}

// SourceMentions returns, for each sentence, the first literal occurrence
// of any of labels, or model.NoMatch. Longer labels win over their own
// prefixes at the same position.
func SourceMentions(labels, sentences []string) []string {
	pattern := mentionPattern(labels)
	out := make([]string, len(sentences))
	for i, sent := range sentences {
		out[i] = model.NoMatch
		if pattern == nil {
			continue
		}
		if m := pattern.FindString(sent); m != "" {
			out[i] = m
		}
	}
	return out
}

func mentionPattern(labels []string) *regexp.Regexp {
	alts := make([]string, 0, len(labels))
	seen := make(map[string]bool)
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		alts = append(alts, l)
	}
	if len(alts) == 0 {
		return nil
	}
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	for i, a := range alts {
		alts[i] = regexp.QuoteMeta(a)
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
}

// Engine turns an enriched record into labeled examples
type Engine struct {
	cutoff float64
	score  Scorer
}

// NewEngine creates an engine with the given inclusive score cutoff
func NewEngine(cutoff float64) *Engine {
	return &Engine{cutoff: cutoff, score: PartialRatio}
}

// Align returns a copy of rec whose assertions carry their examples. Any
// previous examples and Other assertion are replaced.
func (e *Engine) Align(rec *model.EntityRecord) *model.EntityRecord {
	out := rec.Clone()
	sentences := out.Source.Sentences
	mentions := SourceMentions(out.Labels, sentences)

	props := out.Properties[:0]
	for _, p := range out.Properties {
		if p.PropertyID == model.Other {
			continue
		}
		p.Examples = e.examples(p, sentences, mentions)
		props = append(props, p)
	}
	out.Properties = props
	return out
}

func (e *Engine) examples(p model.PropertyAssertion, sentences, mentions []string) []model.LabeledExample {
	values := model.FlattenValues(p.Values)
	texts := make([]string, len(values))
	for i, v := range values {
		texts[i] = v.Text
	}
	matrix := similarity(e.score, sentences, texts, e.cutoff)

	examples := []model.LabeledExample{}
	for c, v := range values {
		for i, sent := range sentences {
			if matrix[i][c] <= 0 {
				continue
			}
			examples = append(examples, model.LabeledExample{
				Relation:   p.RelationLabel,
				Sentence:   sent,
				Source:     mentions[i],
				SourceRole: p.SourceRole,
				Target:     v.Text,
				TargetRole: p.TargetRole,
			})
		}
	}
	return examples
}

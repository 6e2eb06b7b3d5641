package model

import "encoding/json"

// Sentinel mention values used when a sentence carries no source or target
const (
	NoMatch  = "NO-MATCH"  // No entity label found in the sentence
	NoSource = "NO-SOURCE" // Source mention of an Other example
	NoTarget = "NO-TARGET" // Target mention of an Other example

	// Other is the synthetic negative relation
	Other = "Other"
)

// EntityRecord is the unit of work and of persistence for one knowledge-base entity
type EntityRecord struct {
	ID         string              `json:"id"`                   // Wikidata item id (e.g. "Q42")
	Type       string              `json:"type"`                 // Entity type the id was enumerated under (e.g. "Q5")
	RawClaims  json.RawMessage     `json:"data,omitempty"`       // Raw entity graph as returned by the graph source
	Labels     []string            `json:"labels,omitempty"`     // Primary label followed by aliases
	Source     SourceDocument      `json:"wikipedia"`            // Reference article
	Properties []PropertyAssertion `json:"properties,omitempty"` // One per configured relation carried by the entity
}

// SourceDocument is the entity's article, flattened into sentences
type SourceDocument struct {
	URL       string   `json:"url,omitempty"`
	Sentences []string `json:"content,omitempty"`
}

// PropertyAssertion groups the resolved values and aligned examples of one relation
type PropertyAssertion struct {
	PropertyID    string           `json:"propertyID"`
	RelationLabel string           `json:"label"`
	SourceRole    string           `json:"source,omitempty"`
	TargetRole    string           `json:"target,omitempty"`
	Values        []TypedValue     `json:"values,omitempty"`
	Examples      []LabeledExample `json:"sents"`
}

// LabeledExample is one training instance
type LabeledExample struct {
	Relation   string `json:"prop"`
	Sentence   string `json:"sent"`
	Source     string `json:"source"`
	SourceRole string `json:"source_type,omitempty"`
	Target     string `json:"target"`
	TargetRole string `json:"target_type,omitempty"`
}

// HasLabels reports whether label resolution succeeded
func (r *EntityRecord) HasLabels() bool {
	return len(r.Labels) > 0
}

// HasSource reports whether the source document resolved to at least one sentence
func (r *EntityRecord) HasSource() bool {
	return len(r.Source.Sentences) > 0
}

// ExampleCount returns the number of examples across all relations, Other included
func (r *EntityRecord) ExampleCount() int {
	n := 0
	for _, p := range r.Properties {
		n += len(p.Examples)
	}
	return n
}

// LabeledSentences returns the distinct sentences claimed by a non-Other relation,
// in first-seen order
func (r *EntityRecord) LabeledSentences() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.Properties {
		if p.PropertyID == Other {
			continue
		}
		for _, ex := range p.Examples {
			if !seen[ex.Sentence] {
				seen[ex.Sentence] = true
				out = append(out, ex.Sentence)
			}
		}
	}
	return out
}

// Clone returns a deep copy so that stages never mutate their input batch
func (r *EntityRecord) Clone() *EntityRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.RawClaims = append(json.RawMessage(nil), r.RawClaims...)
	c.Labels = append([]string(nil), r.Labels...)
	c.Source.Sentences = append([]string(nil), r.Source.Sentences...)
	if r.Properties != nil {
		c.Properties = make([]PropertyAssertion, len(r.Properties))
		for i, p := range r.Properties {
			p.Values = append([]TypedValue(nil), p.Values...)
			for j := range p.Values {
				p.Values[j].Labels = append([]string(nil), p.Values[j].Labels...)
			}
			p.Examples = append([]LabeledExample(nil), p.Examples...)
			c.Properties[i] = p
		}
	}
	return &c
}

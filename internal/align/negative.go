package align

import "github.com/ppiankov/dares/internal/model"

// NegativeSampler labels leftover document sentences as Other
type NegativeSampler struct {
	maxSize int
	balance bool
}

// NewNegativeSampler creates a sampler capped at maxSize sentences, or at
// the labeled sentence count when balance is set. Setting both is rejected.
func NewNegativeSampler(maxSize int, balance bool) (*NegativeSampler, error) {
	cfg := model.NegativeConfig{Enabled: true, MaxSize: maxSize, Balance: balance}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NegativeSampler{maxSize: maxSize, balance: balance}, nil
}

// Sample returns a copy of rec with an Other assertion holding the document
// sentences no relation claimed, in document order and without duplicates
func (s *NegativeSampler) Sample(rec *model.EntityRecord) *model.EntityRecord {
	out := rec.Clone()

	props := out.Properties[:0]
	for _, p := range out.Properties {
		if p.PropertyID != model.Other {
			props = append(props, p)
		}
	}
	out.Properties = props

	labeled := out.LabeledSentences()
	claimed := make(map[string]bool, len(labeled))
	for _, sent := range labeled {
		claimed[sent] = true
	}

	var unlabeled []string
	for _, sent := range out.Source.Sentences {
		if claimed[sent] {
			continue
		}
		claimed[sent] = true
		unlabeled = append(unlabeled, sent)
	}

	limit := len(unlabeled)
	switch {
	case s.maxSize > 0:
		limit = min(limit, s.maxSize)
	case s.balance:
		limit = min(limit, len(labeled))
	}
	unlabeled = unlabeled[:limit]

	examples := make([]model.LabeledExample, len(unlabeled))
	for i, sent := range unlabeled {
		examples[i] = model.LabeledExample{
			Relation: model.Other,
			Sentence: sent,
			Source:   model.NoSource,
			Target:   model.NoTarget,
		}
	}
	out.Properties = append(out.Properties, model.PropertyAssertion{
		PropertyID:    model.Other,
		RelationLabel: model.Other,
		Examples:      examples,
	})
	return out
}

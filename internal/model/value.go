package model

// ValueKind is the closed set of property value variants
type ValueKind string

const (
	KindEntity   ValueKind = "entity"   // Reference to another item, carried as its resolved labels
	KindTime     ValueKind = "time"     // Normalized date or year text
	KindQuantity ValueKind = "quantity" // Amount as written by the source
	KindString   ValueKind = "string"   // Free text
)

// TypedValue is one resolved value of a relation.
// Exactly one of the variant payloads is meaningful, selected by Kind.
type TypedValue struct {
	Kind   ValueKind `json:"kind"`
	Ref    string    `json:"ref,omitempty"`    // Referent id, KindEntity only
	Labels []string  `json:"labels,omitempty"` // Referent labels and aliases, KindEntity only
	Text   string    `json:"value,omitempty"`  // Normalized text, all other kinds
}

// EntityRef builds an entity reference value
func EntityRef(id string, labels []string) TypedValue {
	return TypedValue{Kind: KindEntity, Ref: id, Labels: labels}
}

// Time builds a time value from its normalized text
func Time(text string) TypedValue {
	return TypedValue{Kind: KindTime, Text: text}
}

// Quantity builds a quantity value
func Quantity(amount string) TypedValue {
	return TypedValue{Kind: KindQuantity, Text: amount}
}

// String builds a string value
func String(text string) TypedValue {
	return TypedValue{Kind: KindString, Text: text}
}

// Texts returns the surface forms a value contributes to alignment
func (v TypedValue) Texts() []string {
	switch v.Kind {
	case KindEntity:
		return v.Labels
	case KindTime, KindQuantity, KindString:
		if v.Text == "" {
			return nil
		}
		return []string{v.Text}
	default:
		return nil
	}
}

// Key identifies a value for deduplication within one assertion
func (v TypedValue) Key() string {
	if v.Kind == KindEntity {
		return string(v.Kind) + ":" + v.Ref
	}
	return string(v.Kind) + ":" + v.Text
}

// ValueText is one (text, type) pair of an assertion, flattened for alignment
type ValueText struct {
	Text string
	Type string // referent id for entity values, kind name otherwise
}

// FlattenValues expands every value into its texts, keeping the first
// occurrence of each (text, type) pair
func FlattenValues(values []TypedValue) []ValueText {
	seen := make(map[ValueText]bool)
	var out []ValueText
	for _, v := range values {
		typ := string(v.Kind)
		if v.Kind == KindEntity {
			typ = v.Ref
		}
		for _, t := range v.Texts() {
			vt := ValueText{Text: t, Type: typ}
			if !seen[vt] {
				seen[vt] = true
				out = append(out, vt)
			}
		}
	}
	return out
}

// DedupeValues removes values with a duplicate Key, keeping order
func DedupeValues(values []TypedValue) []TypedValue {
	seen := make(map[string]bool)
	out := values[:0:0]
	for _, v := range values {
		k := v.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

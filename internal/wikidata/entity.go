package wikidata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/dares/internal/model"
)

var (
	// ErrEntityMissing means the document does not contain the requested entity
	ErrEntityMissing = errors.New("entity missing from document")
	// ErrNoValue marks a snak without a concrete value (novalue, somevalue)
	ErrNoValue = errors.New("snak has no value")
	// ErrUnsupportedValue marks a datavalue type outside entity/time/quantity/string
	ErrUnsupportedValue = errors.New("unsupported datavalue type")
)

// objMap decodes a JSON object, tolerating the empty array the
// EntityData endpoint emits for empty collections
type objMap[V any] map[string]V

func (m *objMap[V]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("[]")) {
		*m = objMap[V]{}
		return nil
	}
	var raw map[string]V
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Document is the EntityData response envelope
type Document struct {
	Entities objMap[*Entity] `json:"entities"`
}

// Entity is the subset of an item the pipeline reads
type Entity struct {
	ID          string              `json:"id"`
	LabelMap    objMap[LangValue]   `json:"labels"`
	AliasMap    objMap[[]LangValue] `json:"aliases"`
	ClaimMap    objMap[[]Statement] `json:"claims"`
	SitelinkMap objMap[Sitelink]    `json:"sitelinks"`
}

// LangValue is a language-tagged string
type LangValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// Sitelink points at the item's article on one wiki
type Sitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Statement is one claim of a property
type Statement struct {
	MainSnak Snak   `json:"mainsnak"`
	Rank     string `json:"rank"`
}

// Snak is the property/value pair of a statement
type Snak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property"`
	DataValue *DataValue `json:"datavalue"`
	DataType  string     `json:"datatype"`
}

// DataValue is the typed, still encoded value of a snak
type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// RawValue is a decoded snak value before label resolution and normalisation
type RawValue struct {
	Kind      model.ValueKind
	EntityID  string // KindEntity
	Time      string // KindTime, e.g. "+1952-03-11T00:00:00Z"
	Precision int    // KindTime, 0 when absent
	Amount    string // KindQuantity, e.g. "+1.96"
	Text      string // KindString
}

// ParseDocument extracts entity id from a raw EntityData document. A document
// holding a single entity under another key (a redirect) yields that entity.
func ParseDocument(raw []byte, id string) (*Entity, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", id, err)
	}
	if e, ok := doc.Entities[id]; ok && e != nil {
		return e, nil
	}
	if len(doc.Entities) == 1 {
		for _, e := range doc.Entities {
			if e != nil {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrEntityMissing)
}

// Labels returns the primary label in lang, or in fallback when lang has
// none, followed by the aliases in lang. ok is false when no label exists.
func (e *Entity) Labels(lang, fallback string) ([]string, bool) {
	primary, ok := e.label(lang)
	if !ok && fallback != "" && fallback != lang {
		primary, ok = e.label(fallback)
	}
	if !ok {
		return nil, false
	}

	labels := []string{primary}
	for _, a := range e.AliasMap[lang] {
		if a.Value != "" {
			labels = append(labels, a.Value)
		}
	}
	return labels, true
}

func (e *Entity) label(lang string) (string, bool) {
	v, ok := e.LabelMap[lang]
	if !ok || v.Value == "" {
		return "", false
	}
	return v.Value, true
}

// Sitelink returns the URL of the item's article on the lang Wikipedia
func (e *Entity) Sitelink(lang string) (string, bool) {
	sl, ok := e.SitelinkMap[lang+"wiki"]
	if !ok {
		return "", false
	}
	if sl.URL != "" {
		return sl.URL, true
	}
	if sl.Title == "" {
		return "", false
	}
	title := url.PathEscape(strings.ReplaceAll(sl.Title, " ", "_"))
	return "https://" + lang + ".wikipedia.org/wiki/" + title, true
}

// Claims returns the statements of property pid; ok is false when the entity
// carries no claim for it
func (e *Entity) Claims(pid string) ([]Statement, bool) {
	st, ok := e.ClaimMap[pid]
	return st, ok
}

// Value decodes the snak's datavalue
func (s Snak) Value() (RawValue, error) {
	if s.SnakType != "" && s.SnakType != "value" {
		return RawValue{}, ErrNoValue
	}
	if s.DataValue == nil {
		return RawValue{}, ErrNoValue
	}

	dv := s.DataValue
	switch dv.Type {
	case "wikibase-entityid":
		var v struct {
			ID        string `json:"id"`
			NumericID int64  `json:"numeric-id"`
			Type      string `json:"entity-type"`
		}
		if err := json.Unmarshal(dv.Value, &v); err != nil {
			return RawValue{}, fmt.Errorf("decode entity id: %w", err)
		}
		id := v.ID
		if id == "" && v.NumericID > 0 && (v.Type == "" || v.Type == "item") {
			id = fmt.Sprintf("Q%d", v.NumericID)
		}
		if id == "" {
			return RawValue{}, fmt.Errorf("entity value without id: %w", ErrNoValue)
		}
		return RawValue{Kind: model.KindEntity, EntityID: id}, nil

	case "time":
		var v struct {
			Time      string `json:"time"`
			Precision int    `json:"precision"`
		}
		if err := json.Unmarshal(dv.Value, &v); err != nil {
			return RawValue{}, fmt.Errorf("decode time: %w", err)
		}
		if v.Time == "" {
			return RawValue{}, fmt.Errorf("empty time: %w", ErrNoValue)
		}
		return RawValue{Kind: model.KindTime, Time: v.Time, Precision: v.Precision}, nil

	case "quantity":
		var v struct {
			Amount string `json:"amount"`
		}
		if err := json.Unmarshal(dv.Value, &v); err != nil {
			return RawValue{}, fmt.Errorf("decode quantity: %w", err)
		}
		if v.Amount == "" {
			return RawValue{}, fmt.Errorf("empty quantity: %w", ErrNoValue)
		}
		return RawValue{Kind: model.KindQuantity, Amount: v.Amount}, nil

	case "string":
		var v string
		if err := json.Unmarshal(dv.Value, &v); err != nil {
			return RawValue{}, fmt.Errorf("decode string: %w", err)
		}
		return RawValue{Kind: model.KindString, Text: v}, nil
	}

	return RawValue{}, fmt.Errorf("%s: %w", dv.Type, ErrUnsupportedValue)
}

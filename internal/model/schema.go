package model

import "sort"

// RelationSchema names a relation and the roles of its two endpoints
type RelationSchema struct {
	Label  string `json:"label" yaml:"label" mapstructure:"label"`    // e.g. "placeOfBirth"
	Source string `json:"source" yaml:"source" mapstructure:"source"` // e.g. "Person"
	Target string `json:"target" yaml:"target" mapstructure:"target"` // e.g. "Location"
}

// EntityType is one enumerated item type and the relations collected for it
type EntityType struct {
	Type      string                    `json:"type" yaml:"type" mapstructure:"type"`    // e.g. "Q5"
	Label     string                    `json:"label" yaml:"label" mapstructure:"label"` // e.g. "human"
	Relations map[string]RelationSchema `json:"props" yaml:"props" mapstructure:"props"` // property id -> schema
}

// PropertyIDs returns the relation identifiers of the type in a stable order
func (t EntityType) PropertyIDs() []string {
	ids := make([]string, 0, len(t.Relations))
	for id := range t.Relations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RelationNames merges the relation schemas of all types into the aggregate
// relation-schema record. A relation declared by several types keeps the first
// declaration.
func RelationNames(types []EntityType) map[string]RelationSchema {
	names := make(map[string]RelationSchema)
	for _, t := range types {
		for _, id := range t.PropertyIDs() {
			if _, ok := names[id]; !ok {
				names[id] = t.Relations[id]
			}
		}
	}
	return names
}

// FindType returns the configured type with the given identifier
func FindType(types []EntityType, id string) (EntityType, bool) {
	for _, t := range types {
		if t.Type == id {
			return t, true
		}
	}
	return EntityType{}, false
}

package model

// CrawlCheckpoint is the append-only sequence of list pages discovered for one type
type CrawlCheckpoint struct {
	EntityType string   `json:"type"`
	URLs       []string `json:"urls"`
}

// Last returns the most recently discovered page, or "" for an empty checkpoint
func (c CrawlCheckpoint) Last() string {
	if len(c.URLs) == 0 {
		return ""
	}
	return c.URLs[len(c.URLs)-1]
}

// Contains reports whether url was already discovered
func (c CrawlCheckpoint) Contains(url string) bool {
	for _, u := range c.URLs {
		if u == url {
			return true
		}
	}
	return false
}

// EntityLinks is the identifier list extracted from a type's list pages
type EntityLinks struct {
	EntityType string   `json:"type"`
	IDs        []string `json:"ent_id"`
}

// DropReason classifies why an entity left the batch
type DropReason string

const (
	DropFetchFailed      DropReason = "fetch_failed"       // Network or payload error on an external source
	DropNoSourceDocument DropReason = "no_source_document" // No article in the configured language
	DropNoLabel          DropReason = "no_label"           // No label in the configured or fallback language
	DropNoMatch          DropReason = "no_match"           // Alignment produced no example
	DropInternal         DropReason = "internal"           // Unexpected failure in a stage
)

// Drop is the audit record of a dropped entity
type Drop struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Stage  string     `json:"stage"`
	Reason DropReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

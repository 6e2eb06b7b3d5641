package pipeline

import (
	"context"
	"errors"
	"net/url"

	"github.com/ppiankov/dares/internal/fetch"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/wikidata"
)

var (
	// ErrFetchFailed wraps a network or payload failure on an external source
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNoSourceDocument means the entity has no usable article in the configured language
	ErrNoSourceDocument = errors.New("no source document")
	// ErrNoLabel means the entity has no label in the configured or fallback language
	ErrNoLabel = errors.New("no label")
	// ErrNoMatch means alignment produced no labeled example
	ErrNoMatch = errors.New("no matched sentence")
)

// Classify maps a stage error onto the drop taxonomy
func Classify(err error) model.DropReason {
	var status *fetch.StatusError
	var urlErr *url.Error

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.DropInternal
	case errors.Is(err, ErrNoLabel):
		return model.DropNoLabel
	case errors.Is(err, ErrNoSourceDocument):
		return model.DropNoSourceDocument
	case errors.Is(err, ErrNoMatch):
		return model.DropNoMatch
	case errors.Is(err, ErrFetchFailed),
		errors.Is(err, fetch.ErrDisallowed),
		errors.Is(err, wikidata.ErrEntityMissing),
		errors.As(err, &status),
		errors.As(err, &urlErr):
		return model.DropFetchFailed
	default:
		return model.DropInternal
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/dares/internal/extract"
	"github.com/ppiankov/dares/internal/fetch"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/wikidata"
	"github.com/ppiankov/dares/internal/worker"
)

func (e *Enricher) fetchGraph(ctx context.Context, rec *model.EntityRecord) worker.Outcome {
	_, raw, err := e.src.Graph.Entity(ctx, rec.ID)
	if err != nil {
		return drop(rec, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	out := rec.Clone()
	out.RawClaims = raw
	return worker.Ok(out)
}

func (e *Enricher) entity(rec *model.EntityRecord) (*wikidata.Entity, error) {
	ent, err := wikidata.ParseDocument(rec.RawClaims, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return ent, nil
}

func (e *Enricher) fetchSource(ctx context.Context, rec *model.EntityRecord) worker.Outcome {
	ent, err := e.entity(rec)
	if err != nil {
		return drop(rec, err)
	}
	link, ok := ent.Sitelink(e.opts.Language)
	if !ok {
		return drop(rec, fmt.Errorf("%w: no %swiki sitelink", ErrNoSourceDocument, e.opts.Language))
	}

	resp, err := e.src.Documents.Fetch(ctx, link)
	if err != nil {
		return drop(rec, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	paragraphs, err := extract.Paragraphs(resp.Body, resp.ContentType)
	if err != nil {
		return drop(rec, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	sentences, err := e.src.Annotator.Sentences(ctx, paragraphs)
	if err != nil {
		return drop(rec, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}

	out := rec.Clone()
	out.Source = model.SourceDocument{URL: link, Sentences: sentences}
	if !out.HasSource() {
		return drop(rec, fmt.Errorf("%w: %s has no sentences", ErrNoSourceDocument, link))
	}
	return worker.Ok(out)
}

func (e *Enricher) resolveLabels(_ context.Context, rec *model.EntityRecord) worker.Outcome {
	ent, err := e.entity(rec)
	if err != nil {
		return drop(rec, err)
	}
	out := rec.Clone()
	out.Labels, _ = ent.Labels(e.opts.Language, e.opts.FallbackLanguage)
	if !out.HasLabels() {
		return drop(rec, fmt.Errorf("%w in %q or %q", ErrNoLabel, e.opts.Language, e.opts.FallbackLanguage))
	}
	return worker.Ok(out)
}

func (e *Enricher) resolveProperties(ctx context.Context, rec *model.EntityRecord) worker.Outcome {
	ent, err := e.entity(rec)
	if err != nil {
		return drop(rec, err)
	}

	out := rec.Clone()
	out.Properties = nil
	schema := e.types[rec.Type]
	for _, pid := range schema.PropertyIDs() {
		statements, ok := ent.Claims(pid)
		if !ok {
			continue
		}
		values, err := e.values(ctx, rec.ID, statements)
		if err != nil {
			return drop(rec, err)
		}
		rel := schema.Relations[pid]
		out.Properties = append(out.Properties, model.PropertyAssertion{
			PropertyID:    pid,
			RelationLabel: rel.Label,
			SourceRole:    rel.Source,
			TargetRole:    rel.Target,
			Values:        model.DedupeValues(values),
		})
	}
	return worker.Ok(out)
}

// values resolves the statements of one property. Values that cannot be
// decoded, and referents without a label, are skipped.
func (e *Enricher) values(ctx context.Context, id string, statements []wikidata.Statement) ([]model.TypedValue, error) {
	var values []model.TypedValue
	for _, st := range statements {
		log := e.logger.WithFields(logrus.Fields{"entity": id, "property": st.MainSnak.Property})

		rv, err := st.MainSnak.Value()
		if err != nil {
			log.Debugf("skipping value: %v", err)
			continue
		}

		switch rv.Kind {
		case model.KindEntity:
			labels, err := e.referentLabels(ctx, rv.EntityID)
			if err != nil {
				return nil, err
			}
			if len(labels) == 0 {
				log.Debugf("skipping %s: no label", rv.EntityID)
				continue
			}
			values = append(values, model.EntityRef(rv.EntityID, labels))
		case model.KindTime:
			values = append(values, model.Time(NormalizeTime(rv.Time, rv.Precision, e.opts.Language)))
		case model.KindQuantity:
			values = append(values, model.Quantity(strings.TrimPrefix(rv.Amount, "+")))
		case model.KindString:
			if rv.Text != "" {
				values = append(values, model.String(rv.Text))
			}
		}
	}
	return values, nil
}

// referentLabels applies the label contract to a referenced item. A deleted
// referent has no labels; any other failure aborts the entity.
func (e *Enricher) referentLabels(ctx context.Context, id string) ([]string, error) {
	labels, _, err := e.src.Graph.Labels(ctx, id, e.opts.Language, e.opts.FallbackLanguage)
	var status *fetch.StatusError
	switch {
	case errors.As(err, &status) && status.NotFound(), errors.Is(err, wikidata.ErrEntityMissing):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: referent %w", ErrFetchFailed, err)
	}
	return labels, nil
}

func (e *Enricher) align(_ context.Context, rec *model.EntityRecord) worker.Outcome {
	out := e.engine.Align(rec)
	if len(out.LabeledSentences()) == 0 && !e.opts.KeepUnmatched {
		return drop(rec, ErrNoMatch)
	}
	if e.sampler != nil {
		out = e.sampler.Sample(out)
	}
	return worker.Ok(out)
}

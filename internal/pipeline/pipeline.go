package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/dares/internal/align"
	"github.com/ppiankov/dares/internal/extract"
	"github.com/ppiankov/dares/internal/fetch"
	"github.com/ppiankov/dares/internal/metrics"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/store"
	"github.com/ppiankov/dares/internal/wikidata"
	"github.com/ppiankov/dares/internal/worker"
)

// GraphSource returns the claim graph of an item and applies the label
// contract to referenced items
type GraphSource interface {
	Entity(ctx context.Context, id string) (*wikidata.Entity, json.RawMessage, error)
	Labels(ctx context.Context, id, lang, fallback string) ([]string, bool, error)
}

// DocumentSource returns a rendered article
type DocumentSource interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// Sources groups the collaborators of the enricher
type Sources struct {
	Graph     GraphSource
	Documents DocumentSource
	Annotator extract.Annotator
	Store     store.SnapshotStore
}

// Options configures enrichment and alignment
type Options struct {
	Language         string
	FallbackLanguage string
	Workers          int
	ScoreCutoff      float64
	KeepUnmatched    bool
	Negative         model.NegativeConfig
	Entities         []model.EntityType
}

// OptionsFromConfig maps the run configuration onto enricher options
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		Language:         cfg.Language,
		FallbackLanguage: cfg.FallbackLanguage,
		Workers:          cfg.Workers,
		ScoreCutoff:      cfg.Alignment.ScoreCutoff,
		KeepUnmatched:    cfg.Alignment.KeepUnmatched,
		Negative:         cfg.Negative,
		Entities:         cfg.Entities,
	}
}

// Result is the outcome of one enrichment run
type Result struct {
	Records []*model.EntityRecord
	Drops   []model.Drop
}

// stage is one barrier of the enrichment sequence
type stage struct {
	name string
	fn   worker.StageFunc
}

// Enricher turns enumerated identifiers into aligned entity records
type Enricher struct {
	src     Sources
	opts    Options
	types   map[string]model.EntityType
	engine  *align.Engine
	sampler *align.NegativeSampler // nil when negatives are disabled
	runner  *worker.StageRunner
	logger  logrus.FieldLogger
}

// New creates an enricher. A conflicting negative sampling policy is
// rejected here, before any entity is processed.
func New(src Sources, opts Options, logger logrus.FieldLogger) (*Enricher, error) {
	if src.Graph == nil || src.Documents == nil || src.Annotator == nil || src.Store == nil {
		return nil, fmt.Errorf("enricher: missing source")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Enricher{
		src:    src,
		opts:   opts,
		types:  make(map[string]model.EntityType, len(opts.Entities)),
		engine: align.NewEngine(opts.ScoreCutoff),
		runner: worker.NewStageRunner(opts.Workers),
		logger: logger,
	}
	for _, t := range opts.Entities {
		e.types[t.Type] = t
	}

	if err := opts.Negative.Validate(); err != nil {
		return nil, err
	}
	if opts.Negative.Enabled {
		s, err := align.NewNegativeSampler(opts.Negative.MaxSize, opts.Negative.Balance)
		if err != nil {
			return nil, err
		}
		e.sampler = s
	}
	return e, nil
}

func (e *Enricher) stages() []stage {
	return []stage{
		{"fetch_graph", e.fetchGraph},
		{"fetch_source", e.fetchSource},
		{"resolve_labels", e.resolveLabels},
		{"resolve_properties", e.resolveProperties},
		{"align", e.align},
	}
}

// Run enriches the items ids enumerated under entityType. Every stage
// drains completely before the next one starts; dropped entities are
// reported in Result.Drops and their snapshots removed.
func (e *Enricher) Run(ctx context.Context, entityType string, ids []string) *Result {
	batch := make([]*model.EntityRecord, len(ids))
	for i, id := range ids {
		batch[i] = &model.EntityRecord{ID: id, Type: entityType}
	}

	res := &Result{}
	stages := e.stages()
	for i, st := range stages {
		log := e.logger.WithFields(logrus.Fields{"stage": st.name, "type": entityType})
		start := time.Now()

		kept, drops := e.runner.Run(ctx, st.name, batch, e.persisted(st.fn))
		e.forget(ctx, drops)
		for _, d := range drops {
			log.WithFields(logrus.Fields{"entity": d.ID, "reason": d.Reason}).Warnf("dropped: %s", d.Error)
			metrics.RecordDrop(st.name, string(d.Reason))
		}
		metrics.RecordStage(st.name, len(kept), len(drops), time.Since(start))
		log.WithField("workers", e.runner.Workers()).
			Infof("stage %d/%d: %d kept, %d dropped", i+1, len(stages), len(kept), len(drops))

		res.Drops = append(res.Drops, drops...)
		batch = kept
	}

	for _, rec := range batch {
		e.logger.WithFields(logrus.Fields{"entity": rec.ID, "type": rec.Type}).
			Debugf("labeled: %d examples", rec.ExampleCount())
		for _, p := range rec.Properties {
			metrics.RecordExamples(p.RelationLabel, len(p.Examples))
		}
	}
	res.Records = batch
	return res
}

// persisted saves the snapshot of a surviving entity
func (e *Enricher) persisted(fn worker.StageFunc) worker.StageFunc {
	return func(ctx context.Context, rec *model.EntityRecord) worker.Outcome {
		out := fn(ctx, rec)
		if out.Dropped() {
			return out
		}
		if err := e.src.Store.Save(ctx, out.Record); err != nil {
			return worker.Dropped(rec, model.DropInternal, fmt.Errorf("save snapshot: %w", err))
		}
		return out
	}
}

// forget removes the snapshots of dropped entities, whatever the cause of
// the drop. It runs after the barrier and survives cancellation of ctx.
func (e *Enricher) forget(ctx context.Context, drops []model.Drop) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range drops {
		if err := e.src.Store.Delete(ctx, d.Type, d.ID); err != nil {
			e.logger.WithField("entity", d.ID).Warnf("delete snapshot: %v", err)
		}
	}
}

func drop(rec *model.EntityRecord, err error) worker.Outcome {
	return worker.Dropped(rec, Classify(err), err)
}

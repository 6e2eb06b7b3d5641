package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/dares/internal/model"
)

// Outcome is the tagged result of one entity in one stage: either Ok with the
// (possibly new) record, or Dropped with the reason.
type Outcome struct {
	Index  int
	Record *model.EntityRecord
	Drop   *model.Drop
}

// GetError returns the drop cause, if any
func (o *Outcome) GetError() error {
	if o.Drop == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", o.Drop.Reason, o.Drop.Error)
}

// Dropped reports whether the entity left the batch
func (o *Outcome) Dropped() bool {
	return o.Drop != nil
}

// Ok keeps rec in the batch
func Ok(rec *model.EntityRecord) Outcome {
	return Outcome{Record: rec}
}

// Dropped removes rec from the batch with the given reason
func Dropped(rec *model.EntityRecord, reason model.DropReason, err error) Outcome {
	d := &model.Drop{ID: rec.ID, Type: rec.Type, Reason: reason}
	if err != nil {
		d.Error = err.Error()
	}
	return Outcome{Drop: d}
}

// StageFunc processes one entity. It owns rec exclusively for the call.
type StageFunc func(ctx context.Context, rec *model.EntityRecord) Outcome

// stageJob adapts a StageFunc to the pool's Job interface
type stageJob struct {
	index int
	stage string
	rec   *model.EntityRecord
	fn    StageFunc
}

// Execute runs the stage for one entity; a panic drops only that entity
func (j *stageJob) Execute(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			out := Dropped(j.rec, model.DropInternal, fmt.Errorf("panic: %v", r))
			out.Index = j.index
			out.Drop.Stage = j.stage
			res = &out
		}
	}()

	if err := ctx.Err(); err != nil {
		out := Dropped(j.rec, model.DropInternal, err)
		out.Index = j.index
		out.Drop.Stage = j.stage
		return &out
	}

	out := j.fn(ctx, j.rec)
	out.Index = j.index
	if out.Drop != nil {
		out.Drop.Stage = j.stage
	}
	return &out
}

// StageRunner applies a stage to a whole batch on a fresh pool and waits for
// it to drain before returning
type StageRunner struct {
	workers int
}

// NewStageRunner creates a runner with the given degree of parallelism
func NewStageRunner(workers int) *StageRunner {
	if workers <= 0 {
		workers = 1
	}
	return &StageRunner{workers: workers}
}

// Workers returns the configured degree of parallelism
func (s *StageRunner) Workers() int {
	return s.workers
}

// Run executes fn for every record of batch. The surviving records keep
// their batch order; drops are returned in batch order as well.
func (s *StageRunner) Run(ctx context.Context, stage string, batch []*model.EntityRecord, fn StageFunc) ([]*model.EntityRecord, []model.Drop) {
	if len(batch) == 0 {
		return []*model.EntityRecord{}, nil
	}

	jobs := make([]Job, len(batch))
	for i, rec := range batch {
		jobs[i] = &stageJob{index: i, stage: stage, rec: rec, fn: fn}
	}

	pool := NewPool(ctx, s.workers)
	results := pool.Run(jobs)

	outcomes := make([]*Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.(*Outcome))
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	kept := make([]*model.EntityRecord, 0, len(outcomes))
	var drops []model.Drop
	seen := make([]bool, len(batch))
	for _, o := range outcomes {
		seen[o.Index] = true
		if o.Dropped() {
			drops = append(drops, *o.Drop)
			continue
		}
		kept = append(kept, o.Record)
	}

	// Jobs never executed because ctx was cancelled
	for i, ok := range seen {
		if !ok {
			d := model.Drop{ID: batch[i].ID, Type: batch[i].Type, Stage: stage, Reason: model.DropInternal}
			if err := ctx.Err(); err != nil {
				d.Error = err.Error()
			}
			drops = append(drops, d)
		}
	}

	return kept, drops
}

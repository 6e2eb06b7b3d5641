package crawl

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/dares/internal/metrics"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/wikidata"
)

// PageFetcher retrieves a list page body
type PageFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures WhatLinksHere enumeration
type Options struct {
	BaseURL   string
	PageSize  int
	MaxPages  int // 0 = unlimited
	SaveStep  int // 0 = save only at termination
	Namespace int
	Workers   int
}

// OptionsFromConfig maps the run configuration onto collector options
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		BaseURL:   cfg.Crawl.BaseURL,
		PageSize:  cfg.Crawl.PageSize,
		MaxPages:  cfg.Crawl.MaxPages,
		SaveStep:  cfg.Crawl.SaveStep,
		Namespace: cfg.Crawl.Namespace,
		Workers:   cfg.Workers,
	}
}

// Collector enumerates the list pages of entity types and the items they list
type Collector struct {
	fetcher PageFetcher
	store   CheckpointStore
	opts    Options
	logger  logrus.FieldLogger
}

// NewCollector creates a collector
func NewCollector(fetcher PageFetcher, store CheckpointStore, opts Options, logger logrus.FieldLogger) *Collector {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{fetcher: fetcher, store: store, opts: opts, logger: logger}
}

// Collect extends the checkpoint of entityType until the last list page,
// the page cap, or an error. A non-empty checkpoint resumes from its last
// page. Progress made before an error is persisted.
func (c *Collector) Collect(ctx context.Context, entityType string) (model.CrawlCheckpoint, error) {
	log := c.logger.WithField("type", entityType)

	unlock, err := c.store.Lock(entityType)
	if err != nil {
		return model.CrawlCheckpoint{EntityType: entityType}, err
	}
	defer unlock()

	cp, err := c.store.Load(ctx, entityType)
	if err != nil {
		return cp, err
	}

	if len(cp.URLs) == 0 {
		log.Info("starting from first list page")
		cp.URLs = append(cp.URLs, wikidata.WhatLinksHereURL(c.opts.BaseURL, entityType, c.opts.Namespace, c.opts.PageSize))
	} else {
		log.WithField("pages", len(cp.URLs)).Info("resuming from last list page")
	}

	crawlErr := c.extend(ctx, &cp, log)

	if err := c.store.Save(ctx, cp); err != nil {
		if crawlErr != nil {
			return cp, fmt.Errorf("%w (and %v)", crawlErr, err)
		}
		return cp, err
	}
	if crawlErr != nil {
		return cp, crawlErr
	}

	log.WithField("pages", len(cp.URLs)).Info("list pages collected")
	return cp, nil
}

func (c *Collector) extend(ctx context.Context, cp *model.CrawlCheckpoint, log logrus.FieldLogger) error {
	current := cp.Last()
	for {
		if c.opts.MaxPages > 0 && len(cp.URLs) >= c.opts.MaxPages {
			log.WithField("max_pages", c.opts.MaxPages).Debug("page cap reached")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := c.fetcher.Get(ctx, current)
		if err != nil {
			return fmt.Errorf("list page %s: %w", current, err)
		}
		doc, err := wikidata.ParseListPage(body)
		if err != nil {
			return err
		}

		next, ok := wikidata.NextPageURL(doc, c.opts.PageSize, current)
		if !ok {
			return nil
		}
		if cp.Contains(next) {
			log.WithField("url", next).Warn("next page already collected, stopping")
			return nil
		}

		cp.URLs = append(cp.URLs, next)
		metrics.RecordPage(cp.EntityType)
		if c.opts.SaveStep > 0 && len(cp.URLs)%c.opts.SaveStep == 0 {
			if err := c.store.Save(ctx, *cp); err != nil {
				return err
			}
			log.WithField("pages", len(cp.URLs)).Debug("checkpoint saved")
		}
		current = next
	}
}

// TypeResult is the outcome of collecting one entity type
type TypeResult struct {
	EntityType string
	Checkpoint model.CrawlCheckpoint
	IDs        []string
	Err        error
}

// CollectAll collects every type and its identifiers with bounded
// parallelism. A failing type does not cancel the others.
func (c *Collector) CollectAll(ctx context.Context, types []string) []TypeResult {
	results := make([]TypeResult, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, t := range types {
		g.Go(func() error {
			res := TypeResult{EntityType: t}
			res.Checkpoint, res.Err = c.Collect(gctx, t)
			if res.Err == nil {
				res.IDs, res.Err = c.Identifiers(gctx, res.Checkpoint)
			}
			if res.Err != nil {
				c.logger.WithField("type", t).WithError(res.Err).Error("collection failed")
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Identifiers fetches every page of the checkpoint and returns the listed
// items in page order, without duplicates
func (c *Collector) Identifiers(ctx context.Context, cp model.CrawlCheckpoint) ([]string, error) {
	pages := make([][]string, len(cp.URLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, u := range cp.URLs {
		g.Go(func() error {
			body, err := c.fetcher.Get(gctx, u)
			if err != nil {
				return fmt.Errorf("list page %s: %w", u, err)
			}
			doc, err := wikidata.ParseListPage(body)
			if err != nil {
				return err
			}
			pages[i] = wikidata.ItemIDs(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, page := range pages {
		for _, id := range page {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

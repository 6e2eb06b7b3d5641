package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ppiankov/dares/internal/cache"
	"github.com/ppiankov/dares/internal/crawl"
	"github.com/ppiankov/dares/internal/extract"
	"github.com/ppiankov/dares/internal/fetch"
	"github.com/ppiankov/dares/internal/logging"
	"github.com/ppiankov/dares/internal/metrics"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/pipeline"
	"github.com/ppiankov/dares/internal/store"
	"github.com/ppiankov/dares/internal/util"
	"github.com/ppiankov/dares/internal/wikidata"
)

// env holds the collaborators shared by the run commands
type env struct {
	cfg         *model.Config
	dir         string
	log         *logrus.Entry
	fetcher     *fetch.Fetcher
	checkpoints *crawl.FileCheckpointStore
	snapshots   store.SnapshotStore
	closeLog    func() error
}

// newEnv loads and validates the configuration and wires the run. The
// metrics server, when configured, lives until ctx is done.
func newEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logrus.Fields{"run_id": uuid.NewString(), "project": cfg.Project.Name})

	if cfg.Log.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Log.MetricsAddr, log); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	dir := cfg.Project.Dir()
	snapshots, err := store.Open(cfg.Store, dir)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	return &env{
		cfg:         cfg,
		dir:         dir,
		log:         log,
		fetcher:     fetch.New(fetch.OptionsFromConfig(cfg, cache.New(cfg.Cache, dir))),
		checkpoints: crawl.NewFileCheckpointStore(dir),
		snapshots:   snapshots,
		closeLog:    closeLog,
	}, nil
}

func (e *env) Close() error {
	return errors.Join(e.snapshots.Close(), e.closeLog())
}

func (e *env) collector() *crawl.Collector {
	return crawl.NewCollector(e.fetcher, e.checkpoints, crawl.OptionsFromConfig(e.cfg), e.log)
}

func (e *env) annotator() extract.Annotator {
	if e.cfg.Annotator.URL != "" {
		proxy := util.NewProxyFunc(e.cfg.HTTP.HTTPProxy, e.cfg.HTTP.HTTPSProxy, e.cfg.HTTP.NoProxy)
		return extract.NewHTTPAnnotator(e.cfg.Annotator.URL, e.cfg.Annotator.Timeout, proxy)
	}
	return extract.NewRuleSplitter()
}

func (e *env) enricher() (*pipeline.Enricher, error) {
	return pipeline.New(pipeline.Sources{
		Graph:     wikidata.NewClient(e.fetcher, e.cfg.Crawl.BaseURL),
		Documents: e.fetcher,
		Annotator: e.annotator(),
		Store:     e.snapshots,
	}, pipeline.OptionsFromConfig(e.cfg), e.log)
}

func typeIDs(types []model.EntityType) []string {
	ids := make([]string, len(types))
	for i, t := range types {
		ids[i] = t.Type
	}
	return ids
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// httpRequests counts outbound requests.
	// Labels: host, code (status code or "error")
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Outbound HTTP requests by host and status",
	}, []string{"host", "code"})

	// cacheLookups counts response cache lookups.
	// Labels: result (hit, miss)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "fetch",
		Name:      "cache_lookups_total",
		Help:      "Response cache lookups by result",
	}, []string{"result"})

	// pagesCrawled counts list pages discovered per entity type.
	pagesCrawled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "crawl",
		Name:      "pages_total",
		Help:      "WhatLinksHere pages discovered per entity type",
	}, []string{"type"})

	// stageEntities counts entities leaving a stage.
	// Labels: stage, outcome (kept, dropped)
	stageEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "pipeline",
		Name:      "entities_total",
		Help:      "Entities leaving each enrichment stage",
	}, []string{"stage", "outcome"})

	// drops counts dropped entities by stage and reason.
	drops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "pipeline",
		Name:      "drops_total",
		Help:      "Dropped entities by stage and reason",
	}, []string{"stage", "reason"})

	// stageDuration measures how long a stage barrier takes.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dares",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each enrichment stage",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	}, []string{"stage"})

	// examples counts emitted examples per relation.
	examples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dares",
		Subsystem: "align",
		Name:      "examples_total",
		Help:      "Labeled examples emitted per relation",
	}, []string{"relation"})
)

// RecordRequest records one outbound request. code 0 means a transport error.
func RecordRequest(host string, code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	httpRequests.WithLabelValues(host, label).Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// RecordPage records a newly discovered list page
func RecordPage(entityType string) {
	pagesCrawled.WithLabelValues(entityType).Inc()
}

// RecordStage records the outcome counts and duration of one stage
func RecordStage(stage string, kept, dropped int, elapsed time.Duration) {
	stageEntities.WithLabelValues(stage, "kept").Add(float64(kept))
	stageEntities.WithLabelValues(stage, "dropped").Add(float64(dropped))
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordDrop records one dropped entity
func RecordDrop(stage, reason string) {
	drops.WithLabelValues(stage, reason).Inc()
}

// RecordExamples adds n examples for relation
func RecordExamples(relation string, n int) {
	if n <= 0 {
		return
	}
	examples.WithLabelValues(relation).Add(float64(n))
}

// Serve exposes the default registry on addr until ctx is done.
// An empty addr is a no-op.
func Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

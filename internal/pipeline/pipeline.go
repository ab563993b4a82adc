package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
)

// ErrStorage is returned by Ingest when the drop could not be persisted after a retry.
var ErrStorage = errors.New("drop storage failed")

// Enricher fills commence time and deep links. Implementations must honour ctx.
type Enricher interface {
	Enrich(ctx context.Context, d *models.Drop) (*models.Drop, error)
}

// Store is what the pipeline needs from persistence.
type Store interface {
	storage.DropStore
	storage.UserStore
	storage.CounterStore
}

// Deps are the pipeline's collaborators. Enricher and OnAccepted are optional.
type Deps struct {
	Store      Store
	Renderer   Renderer
	Surface    Surface
	Enricher   Enricher
	Metrics    *Metrics
	Logger     *slog.Logger
	OnAccepted func(*models.Drop)
	Now        func() time.Time
}

// IngestResult is returned to the ingress caller.
type IngestResult struct {
	Status ClaimResult
	DropID string
}

// Pipeline owns the deduplicator, quota gate and worker pool for drop fanout.
type Pipeline struct {
	cfg      config.PipelineConfig
	loc      *time.Location
	drops    storage.DropStore
	users    storage.UserStore
	dedup    *Deduplicator
	gate     *QuotaGate
	enricher Enricher
	renderer Renderer
	surface  Surface
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time

	onAccepted func(*models.Drop)

	jobs       chan workItem
	workers    sync.WaitGroup
	dispatched sync.WaitGroup
	sweeper    sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

func New(cfg config.PipelineConfig, deps Deps) (*Pipeline, error) {
	if deps.Store == nil || deps.Renderer == nil || deps.Surface == nil {
		return nil, fmt.Errorf("pipeline: store, renderer and surface are required")
	}
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("pipeline: default timezone: %w", err)
	}
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 16
	}
	if cfg.CandidatePageSize <= 0 {
		cfg.CandidatePageSize = 500
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.EnrichmentTimeout <= 0 {
		cfg.EnrichmentTimeout = 5 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 10 * time.Minute
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:        cfg,
		loc:        loc,
		drops:      deps.Store,
		users:      deps.Store,
		dedup:      NewDeduplicator(cfg.DedupeTTL, now),
		gate:       NewQuotaGate(deps.Store, loc),
		enricher:   deps.Enricher,
		renderer:   deps.Renderer,
		surface:    deps.Surface,
		metrics:    metrics,
		log:        logger.With("component", "pipeline"),
		now:        now,
		onAccepted: deps.OnAccepted,
		jobs:       make(chan workItem, cfg.FanoutWorkers*2),
	}, nil
}

// Start launches the worker pool and, if configured, the dedupe sweeper.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.workers.Add(p.cfg.FanoutWorkers)
	for i := 0; i < p.cfg.FanoutWorkers; i++ {
		go p.worker()
	}
	if p.cfg.DedupeSweep {
		p.sweeper.Add(1)
		go func() {
			defer p.sweeper.Done()
			p.dedup.RunSweeper(p.ctx, p.cfg.DedupeTTL)
		}()
	}
	p.log.Info("Pipeline started", "workers", p.cfg.FanoutWorkers, "dedupe_ttl", p.cfg.DedupeTTL)
}

// Stop cancels in-flight fanouts and waits for workers to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.dispatched.Wait()
	p.sweeper.Wait()
	close(p.jobs)
	p.workers.Wait()
	p.log.Info("Pipeline stopped")
}

// Wait blocks until every dispatched enrich+fanout job has finished.
func (p *Pipeline) Wait() {
	p.dispatched.Wait()
}

// Deduplicator exposes the dedupe window, mainly for tests and status.
func (p *Pipeline) Deduplicator() *Deduplicator {
	return p.dedup
}

// Ingest normalizes, deduplicates and persists raw, then detaches enrichment
// and fanout. Only BadDrop and storage faults are returned as errors.
func (p *Pipeline) Ingest(ctx context.Context, raw map[string]any) (IngestResult, error) {
	d, err := Normalize(raw, p.now())
	if err != nil {
		p.metrics.DropsIngested.WithLabelValues("unknown", "bad").Inc()
		return IngestResult{}, err
	}

	claim, key := p.dedup.Claim(d)
	if claim == ClaimDuplicate {
		p.metrics.DropsIngested.WithLabelValues(string(d.Kind), "duplicate").Inc()
		p.log.Debug("Duplicate drop", "event_id", d.EventID, "kind", d.Kind)
		res := IngestResult{Status: ClaimDuplicate}
		if existing, err := p.drops.GetByEventID(ctx, d.EventID); err == nil {
			res.DropID = existing.ID
		}
		return res, nil
	}

	up, err := p.upsertWithRetry(ctx, d)
	if err != nil {
		p.dedup.Release(key)
		p.metrics.DropsIngested.WithLabelValues(string(d.Kind), "storage_error").Inc()
		p.log.Error("Failed to persist drop", "event_id", d.EventID, "error", err)
		return IngestResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	d.ID = up.DropID
	p.metrics.DropsIngested.WithLabelValues(string(d.Kind), "accepted").Inc()
	p.log.Info("Drop accepted", "event_id", d.EventID, "drop_id", d.ID, "kind", d.Kind,
		"margin_pct", d.MarginPct, "inserted", up.Inserted)

	p.dispatch(d)
	return IngestResult{Status: ClaimAccepted, DropID: d.ID}, nil
}

func (p *Pipeline) upsertWithRetry(ctx context.Context, d *models.Drop) (storage.UpsertResult, error) {
	res, err := p.drops.Upsert(ctx, d)
	if err == nil {
		return res, nil
	}
	p.log.Warn("Drop upsert failed, retrying", "event_id", d.EventID, "error", err)

	timer := time.NewTimer(p.cfg.StorageRetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return storage.UpsertResult{}, errors.Join(err, ctx.Err())
	case <-timer.C:
	}
	return p.drops.Upsert(ctx, d)
}

// dispatch runs enrichment then fanout in the background on the pipeline context.
func (p *Pipeline) dispatch(d *models.Drop) {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		p.log.Warn("Pipeline not running, drop persisted without fanout", "drop_id", d.ID)
		return
	}
	ctx := p.ctx
	p.dispatched.Add(1)
	p.mu.Unlock()

	snapshot := d.Clone()
	go func() {
		defer p.dispatched.Done()

		enriched := p.enrich(ctx, snapshot)
		if p.onAccepted != nil {
			p.onAccepted(enriched.Clone())
		}
		report := p.Fanout(ctx, enriched)
		p.log.Info("Fanout finished", report.logAttrs()...)
	}()
}

// enrich returns d with enrichment applied, or d unchanged on timeout or error.
func (p *Pipeline) enrich(ctx context.Context, d *models.Drop) *models.Drop {
	if p.enricher == nil {
		p.metrics.Enrichment.WithLabelValues("skipped").Inc()
		return d
	}

	ectx, cancel := context.WithTimeout(ctx, p.cfg.EnrichmentTimeout)
	defer cancel()

	type result struct {
		drop *models.Drop
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := p.enricher.Enrich(ectx, d.Clone())
		done <- result{out, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ectx.Done():
		res.err = ectx.Err()
	}

	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		p.metrics.Enrichment.WithLabelValues("timeout").Inc()
		p.log.Warn("Enrichment timed out", "drop_id", d.ID, "timeout", p.cfg.EnrichmentTimeout)
		return d
	case res.err != nil || res.drop == nil:
		p.metrics.Enrichment.WithLabelValues("error").Inc()
		p.log.Warn("Enrichment failed", "drop_id", d.ID, "error", res.err)
		return d
	}
	p.metrics.Enrichment.WithLabelValues("ok").Inc()

	out := d.Clone()
	if res.drop.CommenceTime != nil {
		t := *res.drop.CommenceTime
		out.CommenceTime = &t
	}
	if len(res.drop.DeepLinks) > 0 {
		if out.DeepLinks == nil {
			out.DeepLinks = make(map[string]string, len(res.drop.DeepLinks))
		}
		for book, u := range res.drop.DeepLinks {
			out.DeepLinks[book] = u
		}
	}

	if out.CommenceTime != nil || len(out.DeepLinks) > 0 {
		wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
		if err := p.drops.UpdateEnrichment(wctx, out.EventID, out.CommenceTime, out.DeepLinks); err != nil {
			p.log.Warn("Failed to persist enrichment", "event_id", out.EventID, "error", err)
		}
		wcancel()
	}
	return out
}

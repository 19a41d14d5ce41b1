package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/embedding"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/scraper"
)

// Runner runs the scraping loop for one source. *scraper.Runner satisfies it.
type Runner interface {
	ScrapeTypes(ctx context.Context, src scraper.Source, types ...domain.ListingType) domain.ScrapeResult
}

// ListingStore is the slice of the persistence layer the worker needs for
// embedding backfill and stale-listing cleanup.
type ListingStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.Listing, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	CleanupStale(ctx context.Context, days int) (int, error)
}

// Embedder generates listing vectors in batches. *embedding.Service
// satisfies it.
type Embedder interface {
	BatchGenerate(ctx context.Context, listings []domain.Listing) (*embedding.BatchResult, error)
}

// ScrapeStatus is the durable summary of the most recent scrape job,
// served by the admin status endpoint.
type ScrapeStatus struct {
	JobID     string                  `json:"job_id"`
	Type      domain.JobType          `json:"type"`
	State     JobState                `json:"state"`
	Result    *domain.ScrapeJobResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

const (
	scrapeStatusKey = "scrape:status"
	scrapeStatusTTL = 7 * 24 * time.Hour
)

// ReadScrapeStatus loads the last published scrape summary. It returns
// cache.ErrNotFound when no job has run within the retention window.
func ReadScrapeStatus(ctx context.Context, c cache.Cache) (*ScrapeStatus, error) {
	var st ScrapeStatus
	if err := c.Get(ctx, scrapeStatusKey, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WorkerConfig controls job pacing and shutdown behavior.
type WorkerConfig struct {
	// JobTimeout bounds one job end to end. Default 10 minutes.
	JobTimeout time.Duration

	// JobInterval is the minimum spacing between job starts. Default one
	// minute.
	JobInterval time.Duration

	// ShutdownGrace is how long an in-flight job may keep running after
	// shutdown is requested before its context is cut. Default 2 minutes.
	ShutdownGrace time.Duration

	// PollTimeout is the blocking-dequeue window per loop turn. Default 5 s.
	PollTimeout time.Duration

	// EmbedBatch is how many missing-vector listings one backfill pass
	// covers. Default 100.
	EmbedBatch int

	// StaleDays is the age cutoff for the update-check cleanup. Default 30.
	StaleDays int
}

// Worker drains the queue one job at a time. It promotes due retries,
// paces job starts through a rate limiter, dispatches each job to the
// scrapers it covers and publishes progress and a final status summary.
type Worker struct {
	config   WorkerConfig
	queue    *Queue
	runner   Runner
	sources  []scraper.Source
	store    ListingStore
	embedder Embedder
	status   cache.Cache
	limiter  *rate.Limiter

	// Overridable in tests.
	now func() time.Time
}

// NewWorker wires a worker to the queue and the scraping stack.
func NewWorker(cfg WorkerConfig, queue *Queue, runner Runner, srcs []scraper.Source, store ListingStore, embedder Embedder, status cache.Cache) *Worker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.JobInterval <= 0 {
		cfg.JobInterval = time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 2 * time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 100
	}
	if cfg.StaleDays <= 0 {
		cfg.StaleDays = 30
	}
	return &Worker{
		config:   cfg,
		queue:    queue,
		runner:   runner,
		sources:  srcs,
		store:    store,
		embedder: embedder,
		status:   status,
		limiter:  rate.NewLimiter(rate.Every(cfg.JobInterval), 1),
		now:      time.Now,
	}
}

// Run processes jobs until ctx is canceled. Cancellation stops intake; an
// in-flight job keeps running up to the shutdown grace period.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("worker starting",
		"sources", len(w.sources),
		"job_interval", w.config.JobInterval,
		"job_timeout", w.config.JobTimeout)

	for {
		if ctx.Err() != nil {
			logger.Info("worker stopped")
			return nil
		}
		if _, err := w.queue.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("promoting delayed jobs failed", "error", err)
		}
		if err := w.limiter.Wait(ctx); err != nil {
			logger.Info("worker stopped")
			return nil
		}

		job, err := w.queue.Dequeue(ctx, w.config.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker stopped")
				return nil
			}
			logger.Error("dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		w.runJob(ctx, job)
	}
}

// runJob executes one claimed job and records its outcome. The job runs on
// its own context so that intake cancellation does not abort it; only the
// job timeout or an expired shutdown grace does.
func (w *Worker) runJob(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.JobTimeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			select {
			case <-done:
			case <-time.After(w.config.ShutdownGrace):
				logger.Warn("shutdown grace expired, canceling job", "job_id", job.ID)
				cancel()
			}
		}
	}()

	logger.Info("job starting", "job_id", job.ID, "type", job.Type, "attempt", job.Attempt)
	result, err := w.execute(jobCtx, job)

	// Bookkeeping must outlive the job context.
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finCancel()

	if err != nil {
		if qerr := w.queue.Fail(finCtx, job, err); qerr != nil {
			logger.Error("recording job failure failed", "job_id", job.ID, "error", qerr)
		}
		w.writeStatus(finCtx, job)
		return
	}

	w.backfillEmbeddings(jobCtx)

	if qerr := w.queue.Complete(finCtx, job, result); qerr != nil {
		logger.Error("recording job completion failed", "job_id", job.ID, "error", qerr)
	}
	w.writeStatus(finCtx, job)
}

// execute dispatches a job to its sources and aggregates the per-source
// results. Source-level failures are recorded without failing the job;
// only a failure before any scraper runs returns an error.
func (w *Worker) execute(ctx context.Context, job *Job) (*domain.ScrapeJobResult, error) {
	result := &domain.ScrapeJobResult{JobID: job.ID, StartedAt: w.now()}

	if job.Type == domain.JobUpdateCheck {
		removed, err := w.store.CleanupStale(ctx, w.config.StaleDays)
		if err != nil {
			return nil, fmt.Errorf("cleaning up stale listings: %w", err)
		}
		logger.Info("stale listings pruned",
			"job_id", job.ID,
			"removed", removed,
			"older_than_days", w.config.StaleDays)
		result.FinishedAt = w.now()
		return result, nil
	}

	srcs, err := w.sourcesFor(job)
	if err != nil {
		return nil, err
	}
	types := typesFor(job)

	processed := 0
	for i, src := range srcs {
		w.publishProgress(ctx, job, domain.JobProgress{
			ScraperIndex:      i,
			ScraperTotal:      len(srcs),
			Source:            src.Name(),
			ListingsProcessed: processed,
			Status:            domain.JobRunning,
		})

		res := w.scrapeSource(ctx, src, types)
		result.Sources = append(result.Sources, res)
		result.TotalScraped += res.ListingsScraped
		result.TotalSaved += res.ListingsSaved
		result.TotalDuplicates += res.DuplicatesFound
		result.TotalErrors += len(res.Errors)
		processed += res.ListingsScraped

		w.publishProgress(ctx, job, domain.JobProgress{
			ScraperIndex:      i + 1,
			ScraperTotal:      len(srcs),
			Source:            src.Name(),
			Page:              res.PagesProcessed,
			ListingsProcessed: processed,
			Status:            domain.JobRunning,
		})

		if ctx.Err() != nil {
			break
		}
	}

	result.FinishedAt = w.now()
	return result, nil
}

// scrapeSource runs one source, converting a panic into a source-level
// error so the job carries on with the remaining sites.
func (w *Worker) scrapeSource(ctx context.Context, src scraper.Source, types []domain.ListingType) (res domain.ScrapeResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scraper panicked", "source", src.Name(), "panic", r)
			res.Source = src.Name()
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("panic: %v", r))
		}
	}()
	return w.runner.ScrapeTypes(ctx, src, types...)
}

// sourcesFor resolves which sources a job covers. An unresolvable job is a
// pre-scrape failure and goes through the retry path.
func (w *Worker) sourcesFor(job *Job) ([]scraper.Source, error) {
	switch job.Type {
	case domain.JobFullScrape, domain.JobListingType:
		return w.sources, nil
	case domain.JobSingleSource:
		if job.Source == nil || *job.Source == "" {
			return nil, fmt.Errorf("job %s: single-source job without a source", job.ID)
		}
		for _, src := range w.sources {
			if src.Name() == *job.Source {
				return []scraper.Source{src}, nil
			}
		}
		return nil, fmt.Errorf("job %s: unknown source %q", job.ID, *job.Source)
	}
	return nil, fmt.Errorf("job %s: unknown job type %q", job.ID, job.Type)
}

// typesFor resolves which market segments a job covers. Segment-scoped
// jobs without an explicit type fall back to both segments.
func typesFor(job *Job) []domain.ListingType {
	if job.Type == domain.JobListingType && job.ListingType != nil {
		return []domain.ListingType{*job.ListingType}
	}
	return []domain.ListingType{domain.ListingRent, domain.ListingSale}
}

func (w *Worker) publishProgress(ctx context.Context, job *Job, p domain.JobProgress) {
	if err := w.queue.UpdateProgress(ctx, job, p); err != nil {
		logger.Warn("publishing job progress failed", "job_id", job.ID, "error", err)
	}
}

// backfillEmbeddings fills vectors for listings the scrape left without
// one. Best effort; anything missed waits for the next job's pass.
func (w *Worker) backfillEmbeddings(ctx context.Context) {
	if w.embedder == nil || w.store == nil {
		return
	}
	listings, err := w.store.ListMissingEmbeddings(ctx, w.config.EmbedBatch)
	if err != nil {
		logger.Warn("listing missing embeddings failed", "error", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	batch, err := w.embedder.BatchGenerate(ctx, listings)
	if err != nil {
		logger.Warn("embedding backfill failed", "error", err)
		return
	}
	updated := 0
	for id, vec := range batch.Vectors {
		if err := w.store.UpdateEmbedding(ctx, id, vec); err != nil {
			logger.Warn("storing embedding failed", "listing_id", id, "error", err)
			continue
		}
		updated++
	}
	logger.Info("embedding backfill finished",
		"updated", updated,
		"generated", batch.Generated,
		"from_cache", batch.FromCache,
		"failed", len(batch.FailedIDs))
}

// writeStatus publishes the job's final state under the scrape status key.
func (w *Worker) writeStatus(ctx context.Context, job *Job) {
	if w.status == nil {
		return
	}
	st := ScrapeStatus{
		JobID:     job.ID,
		Type:      job.Type,
		State:     job.State,
		Result:    job.Result,
		Error:     job.Error,
		UpdatedAt: w.now(),
	}
	if err := w.status.Set(ctx, scrapeStatusKey, st, scrapeStatusTTL); err != nil {
		logger.Warn("writing scrape status failed", "error", err)
	}
}

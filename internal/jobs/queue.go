// Package jobs provides the Redis-backed scrape job queue, the cron
// scheduler that feeds it and the single-concurrency worker that drains it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
)

// Queue key layout. Jobs live as JSON under their own key; the lists and
// sorted sets hold only job ids.
const (
	keyWait      = "queue:wait"
	keyDelayed   = "queue:delayed"
	keyActive    = "queue:active"
	keyCompleted = "queue:completed"
	keyFailed    = "queue:failed"
	jobKeyPrefix = "queue:job:"
)

var (
	// ErrJobNotFound is returned when no job record exists for an id.
	ErrJobNotFound = errors.New("jobs: job not found")

	// ErrJobActive is returned when an operation needs the job to be idle.
	ErrJobActive = errors.New("jobs: job is active")
)

// JobState is where in the queue lifecycle a job currently sits.
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateDelayed   JobState = "delayed"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Job is a queued scrape job together with its queue bookkeeping.
type Job struct {
	domain.ScrapeJob

	State       JobState                `json:"state"`
	Attempt     int                     `json:"attempt"`
	MaxAttempts int                     `json:"max_attempts"`
	EnqueuedAt  time.Time               `json:"enqueued_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
	NextRunAt   *time.Time              `json:"next_run_at,omitempty"`
	Progress    *domain.JobProgress     `json:"progress,omitempty"`
	Result      *domain.ScrapeJobResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// sortTime is the moment the job last changed state. Recent listings are
// ordered by it, newest first.
func (j *Job) sortTime() time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.EnqueuedAt
}

// Counts reports how many jobs sit in each lifecycle state.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// QueueConfig controls retries and how long finished jobs are kept around.
type QueueConfig struct {
	// MaxAttempts is the default retry budget per job. Default 3.
	MaxAttempts int

	// BackoffBase is the first retry delay; each further retry doubles it.
	// Default one minute.
	BackoffBase time.Duration

	// Completed jobs are dropped once older than CompletedRetention or once
	// more than CompletedKeep of them pile up. Defaults 24 h and 100.
	CompletedRetention time.Duration
	CompletedKeep      int

	// Failed jobs are kept longer for postmortems. Defaults 7 days and 500.
	FailedRetention time.Duration
	FailedKeep      int
}

// DefaultQueueConfig returns the production retry and retention settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:        3,
		BackoffBase:        time.Minute,
		CompletedRetention: 24 * time.Hour,
		CompletedKeep:      100,
		FailedRetention:    7 * 24 * time.Hour,
		FailedKeep:         500,
	}
}

// Queue is the Redis-backed scrape job queue. Waiting jobs form a list,
// delayed and finished jobs live in sorted sets scored by time, and the
// worker claims work by moving ids from the wait list to the active list.
type Queue struct {
	rdb    *redis.Client
	config QueueConfig

	// Overridable in tests.
	now func() time.Time
}

// NewQueue wires the queue to its Redis backend.
func NewQueue(rdb *redis.Client, cfg QueueConfig) *Queue {
	def := DefaultQueueConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = def.CompletedRetention
	}
	if cfg.CompletedKeep <= 0 {
		cfg.CompletedKeep = def.CompletedKeep
	}
	if cfg.FailedRetention <= 0 {
		cfg.FailedRetention = def.FailedRetention
	}
	if cfg.FailedKeep <= 0 {
		cfg.FailedKeep = def.FailedKeep
	}
	return &Queue{rdb: rdb, config: cfg, now: time.Now}
}

// EnqueueOptions tune a single enqueue call. The zero value applies the
// queue defaults.
type EnqueueOptions struct {
	// Delay makes the job ready only after this duration.
	Delay time.Duration

	// MaxAttempts overrides the queue's retry budget for this job.
	MaxAttempts int
}

// Enqueue adds a scrape job to the queue. A missing id is generated, and
// enqueueing an id that already has a record is a silent no-op returning
// the stored job.
func (q *Queue) Enqueue(ctx context.Context, sj domain.ScrapeJob, opts EnqueueOptions) (*Job, error) {
	if sj.ID == "" {
		sj.ID = uuid.NewString()
	}
	if sj.TriggeredBy == "" {
		sj.TriggeredBy = domain.TriggerSystem
	}
	now := q.now()
	if sj.TriggeredAt.IsZero() {
		sj.TriggeredAt = now
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.config.MaxAttempts
	}

	job := &Job{
		ScrapeJob:   sj,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  now,
	}
	if opts.Delay > 0 {
		readyAt := now.Add(opts.Delay)
		job.State = StateDelayed
		job.NextRunAt = &readyAt
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}
	created, err := q.rdb.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("storing job: %w", err)
	}
	if !created {
		logger.Debug("job already enqueued", "job_id", job.ID)
		return q.Get(ctx, job.ID)
	}

	if job.State == StateDelayed {
		err = q.rdb.ZAdd(ctx, keyDelayed, redis.Z{
			Score:  float64(job.NextRunAt.Unix()),
			Member: job.ID,
		}).Err()
	} else {
		err = q.rdb.LPush(ctx, keyWait, job.ID).Err()
	}
	if err != nil {
		return nil, fmt.Errorf("queueing job: %w", err)
	}

	logger.Info("job enqueued",
		"job_id", job.ID,
		"type", job.Type,
		"state", job.State,
		"triggered_by", job.TriggeredBy)
	return job, nil
}

// Get loads one job record by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

// Dequeue claims the oldest waiting job, blocking up to timeout when the
// queue is empty. It returns (nil, nil) when nothing became ready.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	id, err := q.rdb.BLMove(ctx, keyWait, keyActive, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		q.rdb.LRem(ctx, keyActive, 0, id)
		if errors.Is(err, ErrJobNotFound) {
			// The record was canceled or trimmed while the id sat in the
			// wait list. Drop the orphan and move on.
			logger.Warn("claimed job has no record, dropping", "job_id", id)
			return nil, nil
		}
		return nil, err
	}

	now := q.now()
	job.State = StateActive
	job.Attempt++
	job.StartedAt = &now
	job.NextRunAt = nil
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	logger.Info("job claimed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempt)
	return job, nil
}

// PromoteDue moves delayed jobs whose ready time has passed onto the wait
// list, returning how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	due, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range due {
		job, err := q.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				q.rdb.ZRem(ctx, keyDelayed, id)
				continue
			}
			return promoted, err
		}
		job.State = StateWaiting
		job.NextRunAt = nil
		if err := q.saveJob(ctx, job); err != nil {
			return promoted, err
		}
		if err := q.rdb.ZRem(ctx, keyDelayed, id).Err(); err != nil {
			return promoted, fmt.Errorf("leaving delayed set: %w", err)
		}
		if err := q.rdb.LPush(ctx, keyWait, id).Err(); err != nil {
			return promoted, fmt.Errorf("queueing promoted job: %w", err)
		}
		promoted++
		logger.Debug("delayed job promoted", "job_id", id)
	}
	return promoted, nil
}

// UpdateProgress publishes a progress snapshot on the job record.
func (q *Queue) UpdateProgress(ctx context.Context, job *Job, p domain.JobProgress) error {
	job.Progress = &p
	return q.saveJob(ctx, job)
}

// Complete marks an active job as finished with its result and applies the
// completed-set retention.
func (q *Queue) Complete(ctx context.Context, job *Job, result *domain.ScrapeJobResult) error {
	now := q.now()
	job.State = StateCompleted
	job.FinishedAt = &now
	job.Result = result
	job.Error = ""
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, keyActive, 0, job.ID).Err(); err != nil {
		return fmt.Errorf("leaving active list: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, keyCompleted, redis.Z{
		Score:  float64(now.Unix()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("recording completed job: %w", err)
	}
	q.trimSet(ctx, keyCompleted, q.config.CompletedRetention, q.config.CompletedKeep)

	logger.Info("job completed", "job_id", job.ID, "type", job.Type)
	return nil
}

// Fail records a job failure. Jobs with retry budget left are rescheduled
// with exponential backoff; exhausted jobs land in the failed set, where
// the failed-set retention applies.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error) error {
	if err := q.rdb.LRem(ctx, keyActive, 0, job.ID).Err(); err != nil {
		return fmt.Errorf("leaving active list: %w", err)
	}

	now := q.now()
	job.Error = jobErr.Error()

	if job.Attempt < job.MaxAttempts {
		delay := q.retryDelay(job.Attempt)
		readyAt := now.Add(delay)
		job.State = StateDelayed
		job.NextRunAt = &readyAt
		if err := q.saveJob(ctx, job); err != nil {
			return err
		}
		if err := q.rdb.ZAdd(ctx, keyDelayed, redis.Z{
			Score:  float64(readyAt.Unix()),
			Member: job.ID,
		}).Err(); err != nil {
			return fmt.Errorf("scheduling retry: %w", err)
		}
		logger.Warn("job failed, retry scheduled",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"retry_in", delay,
			"error", jobErr)
		return nil
	}

	job.State = StateFailed
	job.FinishedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.ZAdd(ctx, keyFailed, redis.Z{
		Score:  float64(now.Unix()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("recording failed job: %w", err)
	}
	q.trimSet(ctx, keyFailed, q.config.FailedRetention, q.config.FailedKeep)

	logger.Error("job failed permanently",
		"job_id", job.ID,
		"attempts", job.Attempt,
		"error", jobErr)
	return nil
}

// Cancel removes a job that is not currently running from the queue.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State == StateActive {
		return ErrJobActive
	}

	pipe := q.rdb.Pipeline()
	pipe.LRem(ctx, keyWait, 0, id)
	pipe.ZRem(ctx, keyDelayed, id)
	pipe.ZRem(ctx, keyCompleted, id)
	pipe.ZRem(ctx, keyFailed, id)
	pipe.Del(ctx, jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("canceling job %s: %w", id, err)
	}

	logger.Info("job canceled", "job_id", id, "state", job.State)
	return nil
}

// Counts reports the queue depth per lifecycle state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, keyWait)
	active := pipe.LLen(ctx, keyActive)
	completed := pipe.ZCard(ctx, keyCompleted)
	failed := pipe.ZCard(ctx, keyFailed)
	delayed := pipe.ZCard(ctx, keyDelayed)
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("counting jobs: %w", err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// Recent returns up to n jobs across all states, newest first.
func (q *Queue) Recent(ctx context.Context, n int) ([]Job, error) {
	if n <= 0 {
		n = 10
	}
	last := int64(n - 1)

	var ids []string
	for _, cmd := range []*redis.StringSliceCmd{
		q.rdb.LRange(ctx, keyActive, 0, last),
		q.rdb.LRange(ctx, keyWait, 0, last),
		q.rdb.ZRevRange(ctx, keyDelayed, 0, last),
		q.rdb.ZRevRange(ctx, keyCompleted, 0, last),
		q.rdb.ZRevRange(ctx, keyFailed, 0, last),
	} {
		batch, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("listing recent jobs: %w", err)
		}
		ids = append(ids, batch...)
	}

	seen := make(map[string]bool, len(ids))
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		job, err := q.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].sortTime().After(jobs[j].sortTime())
	})
	if len(jobs) > n {
		jobs = jobs[:n]
	}
	return jobs, nil
}

// retryDelay doubles the base delay for each attempt already burned.
func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := q.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// trimSet drops finished jobs past the retention window or the size cap,
// record included. Retention is best effort; a failed trim only logs.
func (q *Queue) trimSet(ctx context.Context, key string, retention time.Duration, keep int) {
	cutoff := strconv.FormatInt(q.now().Add(-retention).Unix(), 10)
	expired, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		logger.Warn("queue retention scan failed", "set", key, "error", err)
		return
	}
	if len(expired) > 0 {
		q.removeFinished(ctx, key, expired)
	}

	total, err := q.rdb.ZCard(ctx, key).Result()
	if err != nil {
		logger.Warn("queue retention count failed", "set", key, "error", err)
		return
	}
	if total <= int64(keep) {
		return
	}
	oldest, err := q.rdb.ZRange(ctx, key, 0, total-int64(keep)-1).Result()
	if err != nil {
		logger.Warn("queue retention scan failed", "set", key, "error", err)
		return
	}
	q.removeFinished(ctx, key, oldest)
}

func (q *Queue) removeFinished(ctx context.Context, key string, ids []string) {
	members := make([]interface{}, len(ids))
	jobKeys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		jobKeys[i] = jobKey(id)
	}
	if err := q.rdb.ZRem(ctx, key, members...).Err(); err != nil {
		logger.Warn("queue retention trim failed", "set", key, "error", err)
		return
	}
	if err := q.rdb.Del(ctx, jobKeys...).Err(); err != nil {
		logger.Warn("queue retention cleanup failed", "set", key, "error", err)
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("storing job %s: %w", job.ID, err)
	}
	return nil
}

func jobKey(id string) string { return jobKeyPrefix + id }

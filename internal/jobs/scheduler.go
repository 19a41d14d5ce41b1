package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
)

// ScheduledJob describes one registered repeatable for status reporting.
type ScheduledJob struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
}

// Scheduler enqueues repeatable scrape jobs on cron expressions. Each
// firing enqueues a fresh copy of the registered job template.
type Scheduler struct {
	cron  *cron.Cron
	queue *Queue

	mu      sync.Mutex
	entries map[string]cron.EntryID
	exprs   map[string]string
}

// NewScheduler wires a scheduler to the queue it feeds.
func NewScheduler(queue *Queue) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		queue:   queue,
		entries: make(map[string]cron.EntryID),
		exprs:   make(map[string]string),
	}
}

// RegisterRepeatable schedules the job template under name. Registering a
// name again replaces its previous schedule, so redeploys can redefine the
// cadence without stacking duplicate entries.
func (s *Scheduler) RegisterRepeatable(name, expr string, template domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}

	id, err := s.cron.AddFunc(expr, func() {
		s.enqueueRepeatable(name, template)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, expr, err)
	}
	s.entries[name] = id
	s.exprs[name] = expr

	logger.Info("repeatable job registered", "name", name, "cron", expr, "type", template.Type)
	return nil
}

// enqueueRepeatable fires one occurrence of a registered job. The template
// is copied with a fresh id so every firing is its own queue entry.
func (s *Scheduler) enqueueRepeatable(name string, template domain.ScrapeJob) {
	job := template
	job.ID = ""
	job.TriggeredBy = domain.TriggerScheduler
	job.TriggeredAt = time.Time{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queued, err := s.queue.Enqueue(ctx, job, EnqueueOptions{})
	if err != nil {
		logger.Error("scheduled enqueue failed", "name", name, "error", err)
		return
	}
	logger.Debug("scheduled job enqueued", "name", name, "job_id", queued.ID)
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started", "repeatables", len(s.entries))
}

// Stop halts the schedule and waits for any in-flight enqueue to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("scheduler stopped")
}

// Entries lists the registered repeatables with their next firing time.
// NextRun is zero until the scheduler has been started.
func (s *Scheduler) Entries() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledJob, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, ScheduledJob{
			Name:    name,
			Cron:    s.exprs[name],
			NextRun: s.cron.Entry(id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/jobs"
	"github.com/nyka2002/stanbot/internal/logger"
)

// triggerRequest is the POST /admin/scraping/trigger payload.
type triggerRequest struct {
	Type         domain.JobType `json:"type"`
	Source       string         `json:"source,omitempty"`
	ListingType  string         `json:"listingType,omitempty"`
	PropertyType string         `json:"propertyType,omitempty"`
	MaxPages     int            `json:"maxPages,omitempty"`
}

// statusResponse is the GET /admin/scraping/status payload.
type statusResponse struct {
	Counts    jobs.Counts         `json:"counts"`
	Scheduled []jobs.ScheduledJob `json:"scheduled"`
	Recent    []jobs.Job          `json:"recent"`
	LastRun   *jobs.ScrapeStatus  `json:"last_run,omitempty"`
}

func (s *Server) handleTriggerScrape(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	job, code, msg := buildJob(req)
	if code != "" {
		writeError(w, http.StatusBadRequest, code, msg)
		return
	}

	queued, err := s.queue.Enqueue(r.Context(), job, jobs.EnqueueOptions{})
	if err != nil {
		logger.Error("manual job enqueue failed", "type", req.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "QUEUE_ERROR", "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": queued.ID,
		"type":   queued.Type,
		"state":  queued.State,
	})
}

// buildJob validates a trigger request into a scrape job. A non-empty code
// means rejection.
func buildJob(req triggerRequest) (domain.ScrapeJob, string, string) {
	job := domain.ScrapeJob{
		Type:        req.Type,
		MaxPages:    req.MaxPages,
		TriggeredBy: domain.TriggerManual,
	}

	switch req.Type {
	case domain.JobFullScrape, domain.JobUpdateCheck:
	case domain.JobSingleSource:
		if req.Source == "" {
			return job, "MISSING_SOURCE", "single_source jobs need a source"
		}
		job.Source = &req.Source
	case domain.JobListingType:
		lt := domain.ListingType(req.ListingType)
		if !lt.Valid() {
			return job, "INVALID_LISTING_TYPE", "listingType must be rent or sale"
		}
		job.ListingType = &lt
	default:
		return job, "INVALID_TYPE", "unknown job type"
	}

	if req.PropertyType != "" {
		pt := domain.PropertyType(req.PropertyType)
		if !pt.Valid() {
			return job, "INVALID_PROPERTY_TYPE", "unknown property type"
		}
		job.PropertyType = &pt
	}
	return job, "", ""
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.Counts(r.Context())
	if err != nil {
		logger.Error("queue counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "QUEUE_ERROR", "")
		return
	}

	recent, err := s.queue.Recent(r.Context(), 10)
	if err != nil {
		logger.Error("recent jobs lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "QUEUE_ERROR", "")
		return
	}
	if recent == nil {
		recent = []jobs.Job{}
	}

	resp := statusResponse{Counts: counts, Recent: recent}
	if s.schedules != nil {
		resp.Scheduled = s.schedules.Entries()
	}
	if resp.Scheduled == nil {
		resp.Scheduled = []jobs.ScheduledJob{}
	}
	if s.status != nil {
		last, err := s.status(r.Context())
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("scrape status read failed", "error", err)
		}
		resp.LastRun = last
	}
	writeJSON(w, http.StatusOK, resp)
}

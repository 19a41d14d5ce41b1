package domain

import "time"

// JobType selects what a scrape job covers.
type JobType string

const (
	JobFullScrape   JobType = "full_scrape"
	JobSingleSource JobType = "single_source"
	JobListingType  JobType = "listing_type_scrape"
	JobUpdateCheck  JobType = "update_check"
)

// TriggerSource records what caused a job to be enqueued.
type TriggerSource string

const (
	TriggerScheduler TriggerSource = "scheduler"
	TriggerManual    TriggerSource = "manual"
	TriggerWebhook   TriggerSource = "webhook"
	TriggerSystem    TriggerSource = "system"
)

// ScrapeJob is the payload of a queued scraping job.
type ScrapeJob struct {
	ID           string        `json:"id"`
	Type         JobType       `json:"type"`
	Source       *string       `json:"source,omitempty"`
	ListingType  *ListingType  `json:"listing_type,omitempty"`
	PropertyType *PropertyType `json:"property_type,omitempty"`
	MaxPages     int           `json:"max_pages,omitempty"`
	TriggeredBy  TriggerSource `json:"triggered_by"`
	TriggeredAt  time.Time     `json:"triggered_at"`
}

// JobStatus is the lifecycle state reported in job progress updates.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobProgress is a point-in-time snapshot published while a job runs.
type JobProgress struct {
	ScraperIndex      int       `json:"scraper_index"`
	ScraperTotal      int       `json:"scraper_total"`
	Source            string    `json:"source"`
	Page              int       `json:"page"`
	ListingsProcessed int       `json:"listings_processed"`
	Status            JobStatus `json:"status"`
}

// ScrapeJobResult aggregates the per-source outcomes of one job.
type ScrapeJobResult struct {
	JobID           string         `json:"job_id"`
	TotalScraped    int            `json:"total_scraped"`
	TotalSaved      int            `json:"total_saved"`
	TotalDuplicates int            `json:"total_duplicates"`
	TotalErrors     int            `json:"total_errors"`
	Sources         []ScrapeResult `json:"sources"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// Package api exposes the HTTP surface: the conversational chat endpoint,
// listing browsing and the admin scraping controls, all mounted on a chi
// router.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nyka2002/stanbot/internal/chat"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/jobs"
	"github.com/nyka2002/stanbot/internal/search"
)

// ChatManager handles one conversational turn. *chat.Manager satisfies it.
type ChatManager interface {
	HandleTurn(ctx context.Context, sessionID, query string, history []domain.Turn) (*chat.Response, error)
}

// ListingReader is the slice of the store the listing endpoints need.
type ListingReader interface {
	List(ctx context.Context, f domain.Filters, limit, offset int) ([]domain.Listing, error)
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	Ping(ctx context.Context) error
}

// SimilarFinder locates listings near a known one. *search.Service
// satisfies it.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, id string, k int) ([]search.Candidate, error)
}

// JobQueue is the slice of the queue the admin endpoints need.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.ScrapeJob, opts jobs.EnqueueOptions) (*jobs.Job, error)
	Counts(ctx context.Context) (jobs.Counts, error)
	Recent(ctx context.Context, n int) ([]jobs.Job, error)
}

// Schedules reports the registered repeatable jobs. *jobs.Scheduler
// satisfies it.
type Schedules interface {
	Entries() []jobs.ScheduledJob
}

// StatusReader loads the last scrape summary. Backed by the cache through
// jobs.ReadScrapeStatus.
type StatusReader func(ctx context.Context) (*jobs.ScrapeStatus, error)

// Server bundles the handler dependencies.
type Server struct {
	chat       ChatManager
	listings   ListingReader
	similar    SimilarFinder
	queue      JobQueue
	schedules  Schedules
	status     StatusReader
	adminToken string
}

// Options configures a Server. Chat, Listings and Similar are required;
// leaving the admin pieces nil disables the admin routes.
type Options struct {
	Chat       ChatManager
	Listings   ListingReader
	Similar    SimilarFinder
	Queue      JobQueue
	Schedules  Schedules
	Status     StatusReader
	AdminToken string
}

// NewServer builds the handler set.
func NewServer(opts Options) *Server {
	return &Server{
		chat:       opts.Chat,
		listings:   opts.Listings,
		similar:    opts.Similar,
		queue:      opts.Queue,
		schedules:  opts.Schedules,
		status:     opts.Status,
		adminToken: opts.AdminToken,
	}
}

// Router mounts all routes with the shared middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/chat", s.handleChat)
	r.Get("/listings", s.handleListListings)
	r.Get("/listings/{id}", s.handleGetListing)
	r.Get("/healthz", s.handleHealth)

	if s.queue != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/scraping/trigger", s.handleTriggerScrape)
			r.Get("/scraping/status", s.handleScrapeStatus)
		})
	}
	return r
}

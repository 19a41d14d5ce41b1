// Package chat runs the conversational search loop. One manager owns all
// sessions: it serializes turns per session, accumulates filters across
// turns and writes session state through to the cache so a restart keeps
// conversations alive.
package chat

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/search"
)

const (
	// sessionTTL bounds both the cached session entry and the idle window
	// after which a session counts as ended.
	sessionTTL = time.Hour

	// resultsTTL caches identical searches across sessions.
	resultsTTL = time.Hour

	sessionKeyPrefix = "chat:session:"
	resultsKeyPrefix = "search:results:"

	// anonUser scopes the results cache while requests carry no user
	// identity.
	anonUser = "anon"

	// clarifyBelow is the overall confidence under which a turn asks for
	// clarification instead of searching.
	clarifyBelow = 0.6

	// firstTurnBelow is the overall confidence under which the very first
	// turn refuses to search at all.
	firstTurnBelow = 0.5

	// narrowAbove is the match count past which a narrowing hint joins
	// the follow-up questions.
	narrowAbove = 5
)

// Extractor parses a query into filters. *search.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, query string) (*search.Extraction, error)
}

// Searcher runs one search. *search.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, f domain.Filters, cfg search.Config) (*search.Result, error)
}

// Response is one assistant turn.
type Response struct {
	SessionID           string                 `json:"session_id"`
	Message             string                 `json:"message"`
	Filters             domain.Filters         `json:"extracted_filters"`
	Listings            []search.RankedListing `json:"listings,omitempty"`
	FollowUpQuestions   []string               `json:"follow_up_questions,omitempty"`
	TotalMatches        int                    `json:"total_matches"`
	ClarificationNeeded bool                   `json:"clarification_needed"`
	Cached              bool                   `json:"cached"`
}

// Manager owns chat sessions and drives each turn through extraction,
// filter merge and search.
type Manager struct {
	extractor Extractor
	searcher  Searcher
	cache     cache.Cache
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.ChatSession
	locks    map[string]*sync.Mutex
}

// NewManager wires the chat loop over an extractor, a searcher and the
// session cache.
func NewManager(e Extractor, s Searcher, c cache.Cache) *Manager {
	return &Manager{
		extractor: e,
		searcher:  s,
		cache:     c,
		now:       time.Now,
		sessions:  make(map[string]*domain.ChatSession),
		locks:     make(map[string]*sync.Mutex),
	}
}

// HandleTurn runs one user turn end to end: extract filters, merge them
// into the session, then clarify or search. Provider and search failures
// become polite assistant messages rather than errors; the one exception
// is a rate-limited provider, which surfaces so the HTTP layer can answer
// 429. An empty sessionID starts a new session; history seeds a session
// the manager has never seen.
func (m *Manager) HandleTurn(ctx context.Context, sessionID, query string, history []domain.Turn) (*Response, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	m.sweep(m.now())

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s := m.loadSession(ctx, sessionID, history)
	firstTurn := s.TurnCount == 0

	logger.Debug("chat turn",
		"session", sessionID, "turn", s.TurnCount+1, "first", firstTurn)

	ext, err := m.extractor.Extract(ctx, query)
	if err != nil {
		var exErr *search.ExtractionError
		switch {
		case errors.As(err, &exErr) && exErr.Code == search.ExtractRateLimited:
			return nil, err
		case errors.As(err, &exErr) && exErr.Code == search.ExtractInvalidResponse:
			// Unusable model output downgrades to a clarification
			// round instead of failing the turn.
			ext = search.EmptyExtraction()
		default:
			logger.Error("extraction failed",
				"session", sessionID, "error", err)
			return m.finishTurn(ctx, s, query, &Response{
				Message: msgProviderTrouble,
			}), nil
		}
	}

	s.CurrentFilters = s.CurrentFilters.Merge(ext.Filters)
	resp := &Response{}

	switch {
	case ext.Confidence.Overall < clarifyBelow || len(ext.Confidence.AmbiguousFields) > 0:
		resp.Message = msgClarify
		resp.ClarificationNeeded = true
		resp.FollowUpQuestions = clarifyQuestions(s.CurrentFilters, ext.Confidence.AmbiguousFields)
	case !shouldSearch(s.CurrentFilters, ext.Confidence.Overall, firstTurn):
		resp.Message = msgNeedMore
		resp.ClarificationNeeded = true
		resp.FollowUpQuestions = clarifyQuestions(s.CurrentFilters, nil)
	default:
		m.runSearch(ctx, s, query, resp)
	}
	return m.finishTurn(ctx, s, query, resp), nil
}

// shouldSearch applies the search gate: a first turn needs overall
// confidence of at least 0.5, and every turn needs at least one
// high-signal filter to search on.
func shouldSearch(f domain.Filters, overall float64, firstTurn bool) bool {
	if firstTurn && overall < firstTurnBelow {
		return false
	}
	return f.Searchable()
}

func (m *Manager) runSearch(ctx context.Context, s *domain.ChatSession, query string, resp *Response) {
	key := resultsKey(query, s.CurrentFilters, anonUser)

	var cached search.Result
	err := m.cache.Get(ctx, key, &cached)
	if err == nil {
		resp.Listings = cached.Listings
		resp.TotalMatches = cached.TotalMatches
		resp.Cached = true
		resp.Message = resultMessage(cached.TotalMatches)
		resp.FollowUpQuestions = followUps(s.CurrentFilters, cached.TotalMatches)
		return
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("results cache read failed", "error", err)
	}

	res, err := m.searcher.Search(ctx, query, s.CurrentFilters, search.Config{})
	if err != nil {
		logger.Error("search failed during chat turn", "session", s.ID, "error", err)
		resp.Message = msgSearchTrouble
		return
	}

	resp.Listings = res.Listings
	resp.TotalMatches = res.TotalMatches
	resp.Message = resultMessage(res.TotalMatches)
	resp.FollowUpQuestions = followUps(s.CurrentFilters, res.TotalMatches)

	if err := m.cache.Set(ctx, key, res, resultsTTL); err != nil {
		logger.Warn("results cache write failed", "error", err)
	}
}

// finishTurn records the user and assistant turns, persists the session
// and stamps the response with the session state.
func (m *Manager) finishTurn(ctx context.Context, s *domain.ChatSession, query string, resp *Response) *Response {
	now := m.now()
	s.AddTurn(domain.RoleUser, query, now)
	s.AddTurn(domain.RoleAssistant, resp.Message, now)
	m.saveSession(ctx, s)

	resp.SessionID = s.ID
	resp.Filters = s.CurrentFilters
	return resp
}

// Reset ends a session immediately; the next turn under the same id
// starts clean.
func (m *Manager) Reset(ctx context.Context, sessionID string) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.cache.Delete(ctx, sessionKey(sessionID)); err != nil {
		logger.Warn("session cache delete failed", "session", sessionID, "error", err)
	}
}

// loadSession returns the live session for id, falling back to the cache
// and then to a fresh session seeded with any client-provided history. A
// session idle past sessionTTL is ended and replaced.
func (m *Manager) loadSession(ctx context.Context, id string, history []domain.Turn) *domain.ChatSession {
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		restored := &domain.ChatSession{}
		if err := m.cache.Get(ctx, sessionKey(id), restored); err == nil {
			s = restored
		} else if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("session cache read failed", "session", id, "error", err)
		}
	}

	if s != nil && now.Sub(s.LastActivity) > sessionTTL {
		logger.Debug("session ended on idle", "session", id)
		s = nil
	}

	if s == nil {
		s = &domain.ChatSession{ID: id, SessionStart: now, LastActivity: now}
		for _, t := range history {
			s.AddTurn(t.Role, t.Content, t.Timestamp)
		}
	}
	s.ID = id

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) saveSession(ctx context.Context, s *domain.ChatSession) {
	if err := m.cache.Set(ctx, sessionKey(s.ID), s, sessionTTL); err != nil {
		logger.Warn("session cache write failed", "session", s.ID, "error", err)
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// sweep drops ended sessions and their locks from memory. The cached
// copies expire on their own.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > sessionTTL {
			delete(m.sessions, id)
			delete(m.locks, id)
		}
	}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// resultsKey derives the search-results cache key from the lowercased
// query, the canonical filters JSON and the user scope.
func resultsKey(query string, f domain.Filters, user string) string {
	sum := md5.Sum([]byte(strings.ToLower(query) + canonicalFilters(f) + user))
	return resultsKeyPrefix + hex.EncodeToString(sum[:])
}

// canonicalFilters renders filters as JSON with sorted keys and sorted
// amenities, so equivalent filter sets share a cache entry.
func canonicalFilters(f domain.Filters) string {
	if len(f.Amenities) > 1 {
		sorted := append([]string(nil), f.Amenities...)
		sort.Strings(sorted)
		f.Amenities = sorted
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(fields)
	return string(out)
}

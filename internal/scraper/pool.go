package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/nyka2002/stanbot/internal/logger"
)

// PoolConfig controls the browser session pool.
type PoolConfig struct {
	// MaxSessions caps how many browsers the pool keeps. Default 3.
	MaxSessions int

	// IdleTimeout is how long a session may sit unused before the sweeper
	// closes it. Default 5 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are checked. Default 1 minute.
	SweepInterval time.Duration

	// Fetcher configures the browsers the pool creates.
	Fetcher FetcherConfig
}

// DefaultPoolConfig returns the standard pool settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSessions:   3,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: time.Minute,
		Fetcher:       DefaultFetcherConfig(),
	}
}

// Pool manages a bounded set of reusable browser sessions. Acquire hands out
// a free session, starting a new browser only when none is available and the
// cap allows it. Idle browsers are closed in the background, always keeping
// at least one warm.
type Pool struct {
	config PoolConfig

	mu       sync.Mutex
	sessions []*BrowserSession
	starting int
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}

	// Overridable in tests.
	newSession   func(FetcherConfig) (*BrowserSession, error)
	pollInterval time.Duration
	createAfter  time.Duration
	now          func() time.Time
}

// NewPool creates a session pool and starts its idle sweeper.
func NewPool(cfg PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	p := &Pool{
		config:       cfg,
		stopSweep:    make(chan struct{}),
		sweepDone:    make(chan struct{}),
		newSession:   newBrowserSession,
		pollInterval: 100 * time.Millisecond,
		createAfter:  30 * time.Second,
		now:          time.Now,
	}
	go p.sweepLoop()
	return p
}

// Acquire returns a session for exclusive use. It prefers an existing free
// session, starts a new browser while the pool is under its cap, and
// otherwise waits for one to be released. If nothing frees up within 30
// seconds it starts an extra browser anyway rather than stalling the job;
// the sweeper brings the pool back under the cap later.
func (p *Pool) Acquire(ctx context.Context) (*BrowserSession, error) {
	deadline := p.now().Add(p.createAfter)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		for _, s := range p.sessions {
			if !s.inUse {
				s.inUse = true
				p.mu.Unlock()
				return s, nil
			}
		}

		overCap := p.now().After(deadline)
		if len(p.sessions)+p.starting < p.config.MaxSessions || overCap {
			p.starting++
			p.mu.Unlock()

			if overCap {
				logger.Warn("no browser session freed in time, starting extra browser",
					"waited", p.createAfter)
			}
			s, err := p.newSession(p.config.Fetcher)

			p.mu.Lock()
			p.starting--
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			if p.closed {
				p.mu.Unlock()
				s.Close()
				return nil, ErrPoolClosed
			}
			s.inUse = true
			p.sessions = append(p.sessions, s)
			p.mu.Unlock()
			return s, nil
		}
		p.mu.Unlock()

		if err := sleepCtx(ctx, p.pollInterval); err != nil {
			return nil, err
		}
	}
}

// Release returns a session to the pool.
func (p *Pool) Release(s *BrowserSession) {
	if s == nil {
		return
	}
	p.mu.Lock()
	s.inUse = false
	s.lastUsed = p.now()
	p.mu.Unlock()
}

// Size reports how many sessions the pool currently holds.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close shuts down the sweeper and every browser in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	close(p.stopSweep)
	<-p.sweepDone

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

// sweepIdle closes free sessions that have been idle past the timeout. One
// session is always kept warm so the next job doesn't pay browser startup.
func (p *Pool) sweepIdle() {
	cutoff := p.now().Add(-p.config.IdleTimeout)

	p.mu.Lock()
	var keep []*BrowserSession
	var expired []*BrowserSession
	for _, s := range p.sessions {
		if !s.inUse && s.lastUsed.Before(cutoff) && len(p.sessions)-len(expired) > 1 {
			expired = append(expired, s)
			continue
		}
		keep = append(keep, s)
	}
	p.sessions = keep
	p.mu.Unlock()

	for _, s := range expired {
		logger.Debug("closing idle browser session")
		s.Close()
	}
}

package commands

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/config"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/jobs"
	"github.com/nyka2002/stanbot/internal/llm"
	"github.com/nyka2002/stanbot/internal/scraper"
	"github.com/nyka2002/stanbot/internal/store"
)

// openStore connects the Postgres listing store and applies the schema.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(store.Options{
		DSN:          cfg.Store.DSN,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
	})
}

// openRedis connects the shared Redis client behind the cache and queue.
func openRedis(cfg *config.Config) (*redis.Client, error) {
	return cache.NewClient(cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// providerConfig maps the LLM section onto a provider configuration.
func providerConfig(cfg *config.Config) llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.APIKey = cfg.LLM.APIKey
	pc.Model = cfg.LLM.ChatModel
	pc.EmbeddingModel = cfg.LLM.EmbeddingModel
	pc.EmbeddingDimensions = cfg.LLM.EmbeddingDim
	if cfg.LLM.RequestTimeout > 0 {
		pc.Timeout = cfg.LLM.RequestTimeout
	}
	return pc
}

// embeddingCache fronts the Redis cache with a small in-process LRU tier;
// hot query vectors skip the network round-trip.
func embeddingCache(redisCache cache.Cache) (cache.Cache, error) {
	mem, err := cache.NewMemoryCache(1024)
	if err != nil {
		return nil, err
	}
	return cache.NewTieredCache(mem, redisCache, 5*time.Minute), nil
}

// scraperStack builds the browser pool, the static client and the runner.
func scraperStack(cfg *config.Config, st scraper.ListingStore) (*scraper.Pool, *scraper.Runner) {
	fetcherCfg := scraper.DefaultFetcherConfig()
	if cfg.Scrape.UserAgent != "" {
		fetcherCfg.UserAgent = cfg.Scrape.UserAgent
	}

	poolCfg := scraper.DefaultPoolConfig()
	poolCfg.MaxSessions = cfg.Scrape.MaxBrowsers
	poolCfg.Fetcher = fetcherCfg
	if cfg.Scrape.BrowserIdleTimeout > 0 {
		poolCfg.IdleTimeout = cfg.Scrape.BrowserIdleTimeout
	}
	pool := scraper.NewPool(poolCfg)

	runner := scraper.NewRunner(scraper.RunnerConfig{
		MaxPages: cfg.Scrape.MaxPages,
		Limiter: scraper.LimiterConfig{
			RequestsPerMinute: cfg.Scrape.RequestsPerMinute,
			DelayBetween:      cfg.Scrape.MinDelay,
			DelayVariance:     cfg.Scrape.DelayVariance,
			DetailDelay:       cfg.Scrape.DetailDelay,
		},
	}, pool, scraper.NewStaticClient(fetcherCfg), st)

	return pool, runner
}

// registerSchedules binds the configured cron expressions to their job
// templates.
func registerSchedules(cfg *config.Config, sched *jobs.Scheduler) error {
	if err := sched.RegisterRepeatable("full-scrape", cfg.Jobs.FullScrapeCron,
		domain.ScrapeJob{Type: domain.JobFullScrape}); err != nil {
		return err
	}

	rent := domain.ListingRent
	return sched.RegisterRepeatable("rental-scrape", cfg.Jobs.RentalScrapeCron,
		domain.ScrapeJob{Type: domain.JobListingType, ListingType: &rent})
}

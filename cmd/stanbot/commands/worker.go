package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/embedding"
	"github.com/nyka2002/stanbot/internal/jobs"
	"github.com/nyka2002/stanbot/internal/llm"
	"github.com/nyka2002/stanbot/internal/scraper/sources"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scrape job worker and its cron schedules",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		logError("%v", err)
		return err
	}

	rdb, err := openRedis(cfg)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer rdb.Close()
	redisCache := cache.NewRedisCache(rdb)

	embProvider, err := llm.NewEmbeddingProvider(providerConfig(cfg))
	if err != nil {
		logError("%v", err)
		return err
	}
	embCache, err := embeddingCache(redisCache)
	if err != nil {
		logError("%v", err)
		return err
	}
	embSvc := embedding.NewService(embProvider, embCache)

	pool, runner := scraperStack(cfg, st)
	defer pool.Close()

	queue := jobs.NewQueue(rdb, jobs.QueueConfig{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BackoffBase: cfg.Jobs.BackoffBase,
	})

	sched := jobs.NewScheduler(queue)
	if err := registerSchedules(cfg, sched); err != nil {
		logError("%v", err)
		return err
	}
	sched.Start()
	defer sched.Stop()

	worker := jobs.NewWorker(jobs.WorkerConfig{
		JobTimeout: cfg.Jobs.JobTimeout,
		StaleDays:  cfg.Scrape.StaleAfterDays,
	}, queue, runner, sources.All(), st, embSvc, redisCache)

	return worker.Run(ctx)
}

package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyka2002/stanbot/internal/api"
	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/chat"
	"github.com/nyka2002/stanbot/internal/embedding"
	"github.com/nyka2002/stanbot/internal/jobs"
	"github.com/nyka2002/stanbot/internal/llm"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (chat, listings, admin)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
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

	pc := providerConfig(cfg)
	provider, err := llm.NewProvider(cfg.LLM.Provider, pc)
	if err != nil {
		logError("%v", err)
		return err
	}
	embProvider, err := llm.NewEmbeddingProvider(pc)
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

	ranker := search.NewRanker(search.DefaultRankWeights(), search.NewMatcher(search.DefaultWeights()))
	searchSvc := search.NewService(st, embSvc, ranker)
	manager := chat.NewManager(search.NewExtractor(provider), searchSvc, redisCache)

	queue := jobs.NewQueue(rdb, jobs.QueueConfig{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BackoffBase: cfg.Jobs.BackoffBase,
	})

	// The API process never fires the schedules (the worker does); it
	// registers them only so the status endpoint can report the cadence.
	sched := jobs.NewScheduler(queue)
	if err := registerSchedules(cfg, sched); err != nil {
		logError("%v", err)
		return err
	}

	server := api.NewServer(api.Options{
		Chat:      manager,
		Listings:  st,
		Similar:   searchSvc,
		Queue:     queue,
		Schedules: sched,
		Status: func(ctx context.Context) (*jobs.ScrapeStatus, error) {
			return jobs.ReadScrapeStatus(ctx, redisCache)
		},
		AdminToken: cfg.HTTP.AdminToken,
	})

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logError("%v", err)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.HTTP.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logError("shutdown: %v", err)
		return err
	}
	return nil
}

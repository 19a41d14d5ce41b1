package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/output"
	"github.com/nyka2002/stanbot/internal/scraper"
	"github.com/nyka2002/stanbot/internal/scraper/sources"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a one-shot scrape from the command line",
	Long: `Scrape runs the listing scrapers once, outside the job queue, and
writes the per-source results to stdout or a file.

Examples:
  # Scrape every portal
  stanbot scrape

  # Scrape one portal's rentals, two pages deep
  stanbot scrape --source njuskalo --listing-type rent --max-pages 2

  # Write results as YAML
  stanbot scrape -o results.yaml -f yaml`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringP("source", "s", "", "scrape only this source")
	scrapeCmd.Flags().StringP("listing-type", "t", "", "scrape only rent or sale")
	scrapeCmd.Flags().Int("max-pages", 0, "pages per segment (overrides config)")
	scrapeCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	scrapeCmd.Flags().StringP("format", "f", "json", "output format: json, jsonl, yaml")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
		cfg.Scrape.MaxPages = n
	}

	srcs, err := selectSources(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	types, err := selectTypes(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatName)
	if err != nil {
		logError("%v", err)
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			logError("creating output file: %v", err)
			return err
		}
		defer f.Close()
		out = f
	}
	writer, err := output.NewWriter(out, format)
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

	pool, runner := scraperStack(cfg, st)
	defer pool.Close()

	failed := 0
	for _, src := range srcs {
		if ctx.Err() != nil {
			break
		}
		res := runner.ScrapeTypes(ctx, src, types...)
		if !res.Success {
			failed++
		}
		if err := writer.Write(res); err != nil {
			logError("writing result: %v", err)
			return err
		}
		logger.Info("source finished",
			"source", res.Source,
			"saved", res.ListingsSaved,
			"duplicates", res.DuplicatesFound,
			"errors", len(res.Errors))
	}

	if err := writer.Close(); err != nil {
		logError("flushing output: %v", err)
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(srcs))
	}
	return nil
}

// selectSources resolves the --source flag against the known portals.
func selectSources(cmd *cobra.Command) ([]scraper.Source, error) {
	name, _ := cmd.Flags().GetString("source")
	all := sources.All()
	if name == "" {
		return all, nil
	}
	for _, src := range all {
		if src.Name() == name {
			return []scraper.Source{src}, nil
		}
	}
	names := make([]string, len(all))
	for i, src := range all {
		names[i] = src.Name()
	}
	return nil, fmt.Errorf("unknown source %q (available: %v)", name, names)
}

// selectTypes resolves the --listing-type flag; empty means both segments.
func selectTypes(cmd *cobra.Command) ([]domain.ListingType, error) {
	v, _ := cmd.Flags().GetString("listing-type")
	if v == "" {
		return []domain.ListingType{domain.ListingRent, domain.ListingSale}, nil
	}
	lt := domain.ListingType(v)
	if !lt.Valid() {
		return nil, fmt.Errorf("invalid listing type %q (rent or sale)", v)
	}
	return []domain.ListingType{lt}, nil
}

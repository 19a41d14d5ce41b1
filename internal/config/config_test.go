package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// --- Config Tests ---

func TestLoad_DefaultsAreValid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.LLM.EmbeddingDim != 1536 {
		t.Errorf("expected embedding dim 1536, got %d", cfg.LLM.EmbeddingDim)
	}
	if cfg.Jobs.FullScrapeCron != "0 */6 * * *" {
		t.Errorf("unexpected full scrape cron %q", cfg.Jobs.FullScrapeCron)
	}
	if cfg.Jobs.RentalScrapeCron != "0 */2 * * *" {
		t.Errorf("unexpected rental scrape cron %q", cfg.Jobs.RentalScrapeCron)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("log_level", "verbose")

	_, err := Load(v)
	if err == nil {
		t.Fatal("Load() should reject unknown log level")
	}
	if !strings.Contains(err.Error(), "validating config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidProvider(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("llm.provider", "mistral")

	if _, err := Load(v); err == nil {
		t.Fatal("Load() should reject unknown provider")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("scrape.requests_per_minute", 30)
	v.Set("http.addr", ":9090")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scrape.RequestsPerMinute != 30 {
		t.Errorf("expected 30 rpm, got %d", cfg.Scrape.RequestsPerMinute)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %q", cfg.HTTP.Addr)
	}
}

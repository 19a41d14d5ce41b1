// Package commands implements the CLI commands for stanbot.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nyka2002/stanbot/internal/config"
	"github.com/nyka2002/stanbot/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "stanbot",
	Short: "Conversational real-estate search for the Croatian market",
	Long: `Stanbot scrapes Croatian listing portals, indexes the ads by embedding
and answers natural-language housing queries.

Examples:
  # Start the HTTP API (chat, listings, admin)
  stanbot serve

  # Start the scrape worker with its cron schedules
  stanbot worker

  # One-shot scrape of a single portal
  stanbot scrape --source njuskalo --max-pages 2 -o results.json`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default ./stanbot.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("stanbot")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STANBOT")
	viper.AutomaticEnv()

	// Also check the providers' own API key env vars.
	_ = viper.BindEnv("llm.api_key", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY")

	config.SetDefaults(viper.GetViper())

	// Missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// loadConfig builds the validated configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if viper.GetBool("debug") {
		level = "debug"
	}
	logger.Init(logger.Options{
		Level: level,
		JSON:  cfg.LogFormat == "json",
	})
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

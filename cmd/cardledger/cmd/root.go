package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/config"
)

var (
	configPath string
	envFile    string
	apiURL     string
	dataDir    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cardledger",
	Short: "cardledger uploads credit card statements and exports their history",
	Long: `A client for the card statement portal: sign in, upload statement PDFs,
browse and filter processed statements, export them, and manage accounts.
Complete documentation is available at https://github.com/jmcleod/cardledger`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file read before CARDLEDGER_* variables")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Statement backend base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the credential slot")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig layers the command-line flags over the loaded configuration
// and sets up the logger.
func loadConfig(cmd *cobra.Command) error {
	bootstrap := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	loaded, err := config.NewLoader(bootstrap, config.WithEnvFile(envFile)).Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if apiURL != "" {
		loaded.API.URL = apiURL
	}
	if dataDir != "" {
		loaded.Data.Dir = dataDir
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return nil
}

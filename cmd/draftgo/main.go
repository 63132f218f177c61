package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/draftgo-dev/draftgo/pkg/config"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configPath string
	userID     string

	rootCmd = &cobra.Command{
		Use:   "draftgo",
		Short: "Manage your expense draft, scan credits and saved records",
		Long: `draftgo captures expense receipts, extracts their fields through a
metered analysis backend and tracks the one in-progress draft across
restarts.`,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "Override the configured user identity")
	rootCmd.AddCommand(statusCmd, scanCmd, saveCmd, discardCmd, balanceCmd, grantCmd, serveCmd)

	grantCmd.Flags().StringVar(&grantPool, "pool", "standard", "Credit pool (standard or premium)")
	grantCmd.Flags().Int64Var(&grantAmount, "amount", 1, "Credits to grant")
}

func defaultConfigPath() string {
	if p := os.Getenv("DRAFTGO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".draftgo", "config.yaml")
}

// loadConfig reads the config file when present and falls back to defaults
// and environment variables when it is not.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: Failed to load config %s: %v", configPath, err)
		}
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	if userID != "" {
		cfg.UserID = userID
	}
	return cfg
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ops-console CLI: the
// operational knowledge base behind the agent's web console.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ops-console/internal/kb"
	"github.com/pdiddy/ops-console/internal/secrets"
	"github.com/pdiddy/ops-console/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// apiToken holds the console API bearer token loaded from .secrets/ at
// startup; empty when none is configured.
var apiToken string

// rootCmd is the base command for the ops-console CLI.
var rootCmd = &cobra.Command{
	Use:   "ops-console",
	Short: "Operational knowledge base for the upload agent console",
	Long: `ops-console manages the operational knowledge base backing the agent's
web console: versioned runbook articles with an editorial review workflow,
two-tier retrieval, citation-bearing answers, and a docs import pipeline.

Each operation family is a subcommand: kb for article management and review,
search/ask/recommend for retrieval, import for docs synchronization, and
serve for the JSON API the console renders from.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		token, err := secrets.APIToken(".secrets/")
		if err != nil {
			return err
		}
		apiToken = token
		if token != "" {
			fmt.Fprintln(os.Stderr, "Loaded secrets: [api-token]")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ops-console.yaml or ~/.config/ops-console/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "data", "directory holding the knowledge base database")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ops-console")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ops-console"))
		}
	}

	viper.SetEnvPrefix("OPS_CONSOLE")
	viper.AutomaticEnv()
	viper.SetDefault("review_window_days", 90)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openStore builds the store configuration from flags, config file, and
// environment, and opens the database.
func openStore(cmd *cobra.Command) (*kb.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if v := viper.GetString("data_dir"); v != "" && !cmd.Flags().Changed("data-dir") {
		dataDir = v
	}

	cfg := types.KnowledgeBaseConfig{
		DataDir:      dataDir,
		ReviewWindow: time.Duration(viper.GetInt("review_window_days")) * 24 * time.Hour,
		PageSize:     viper.GetInt("page_size"),
	}
	return kb.Open(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

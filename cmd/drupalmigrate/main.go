// Command drupalmigrate imports Drupal blog content (posts, comments,
// members) into a content tree, from CSV exports or straight from the Drupal
// database, and produces Apache rewrite rules for the old URLs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/drupalmigrate/internal/config"
	_ "github.com/JonMunkholm/drupalmigrate/internal/drupal" // Register importers
	"github.com/JonMunkholm/drupalmigrate/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Global flags
var (
	jsonOutput  bool
	backendFlag string
	profileFlag string
	envFile     string
)

var rootCmd = &cobra.Command{
	Use:   "drupalmigrate",
	Short: "Import Drupal blog content and generate rewrite rules",
	Long: `drupalmigrate reconciles Drupal posts, comments and users with a content tree.

Runs are idempotent: records are matched to existing entities by their Drupal
ids, so re-running an import updates in place instead of duplicating.

Examples:
  drupalmigrate importers                             # List importers
  drupalmigrate import users --drupal                 # Import members from DRUPAL_DSN
  drupalmigrate import posts --file posts.csv --dry-run
  drupalmigrate import posts --file posts.csv --rules-out rewrite.txt
  drupalmigrate runs                                  # Recent run history
  drupalmigrate serve                                 # HTTP API`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Content store: postgres or memory (overrides STORE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "YAML import profile (overrides IMPORT_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")

	rootCmd.AddCommand(importersCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

// cfg is loaded once flags are parsed.
var cfg *config.Config

// setup loads the environment file and configuration, then configures logging.
// Flags override their environment variables.
func setup(cmd *cobra.Command, _ []string) error {
	// Overload so values in the env file win over stale shell exports.
	if err := godotenv.Overload(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	if backendFlag != "" {
		if err := os.Setenv("STORE_BACKEND", backendFlag); err != nil {
			return err
		}
	}
	if profileFlag != "" {
		if err := os.Setenv("IMPORT_PROFILE", profileFlag); err != nil {
			return err
		}
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c

	// Logs go to stderr; stdout carries command output.
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

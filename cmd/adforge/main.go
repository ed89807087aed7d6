package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/arbor"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported, later files override earlier ones
	serverPort  int
	serverHost  string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "adforge",
	Short: "Ad campaign generator and OODA agent job watcher",
	Long: `AdForge drafts one ad campaign per target audience, renders an image for each,
and watches campaign-analysis agent jobs through to completion.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd, generateCmd, watchCmd, versionCmd)
}

// loadConfig runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Initialize logger
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("adforge.toml"); err == nil {
			configFiles = append(configFiles, "adforge.toml")
		} else if _, err := os.Stat("deployments/local/adforge.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/adforge.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)

	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Bool("in_memory", config.Storage.Badger.InMemory).
		Str("backend_url", config.Agent.BackendURL).
		Msg("Resolved configuration (sanitized)")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svnlab/easy-file/config"
	"github.com/svnlab/easy-file/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "exportd",
	Short: "exportd - asynchronous file-export engine",
	Long: `exportd - asynchronous file-export engine.

Registered export jobs run off the request path: a record is created,
a trigger message dispatches execution, and a compensation scanner
recovers jobs whose trigger was lost.

Examples:
  exportd migrate              # Apply database migrations
  exportd serve                # Run the consumer and compensation scanner
  exportd serve -c prod.toml   # Run with an explicit config file`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads configuration from the given file or the environment,
// then initializes the global logger.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(cfg.Log.JSON); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

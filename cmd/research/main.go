// Command research investigates a question over a local directory: it
// indexes the files, runs several search strategies over a bounded number
// of refinement iterations and prints a report.
//
// Usage:
//
//	research run "how is the login token validated" --dir ./src
//	research serve --config configs/development.yaml
//	research stats --dir ./src
//	research history [run-id]
//	research events
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "research",
		Short:         "Iterative research over a local directory",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (text, json)")

	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(loadtestCmd())
	root.AddCommand(cacheCmd())
	return root
}

// loadConfig reads the config and installs the logger on stderr so stdout
// carries only command output.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

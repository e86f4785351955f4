package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/config"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
)

type globalOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var g globalOptions
	cmd := &cobra.Command{
		Use:           "extractor",
		Short:         "Extract canonical records from financial documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&g.jsonLogs, "json-logs", false, "Emit logs as JSON")

	cmd.AddCommand(
		runCmd(&g),
		validateCmd(),
		chunkCmd(&g),
	)
	return cmd
}

// load resolves configuration with command-line overrides applied last.
func (g *globalOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.jsonLogs {
		cfg.Log.JSON = true
	}
	return cfg, cfg.Logger(), nil
}

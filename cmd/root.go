// Package cmd implements the recall CLI: indexing, search, context
// assembly, transcript compaction and the background service.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	configFlag  string
	verboseFlag bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Local memory engine: index, search and compact workspace knowledge",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verboseFlag)
		},
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (JSON5)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(indexCmd())
	cmd.AddCommand(searchCmd())
	cmd.AddCommand(contextCmd())
	cmd.AddCommand(compactCmd())
	cmd.AddCommand(logCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(serveCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// resolveConfigPath picks the config file: --config flag, then
// RECALL_CONFIG, then recall.json5 in the working directory.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := os.Getenv("RECALL_CONFIG"); env != "" {
		return env
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "recall.json5"
	}
	return filepath.Join(cwd, "recall.json5")
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

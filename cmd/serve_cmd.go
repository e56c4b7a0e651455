package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/cron"
	"github.com/nextlevelbuilder/recall/internal/memory"
)

// serveCmd runs the background service: an initial full index, a
// filesystem watcher for incremental re-indexing, and the scheduled
// maintenance sweeps.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background indexer, watcher and maintenance scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			stats, err := e.mgr.IndexAll(ctx)
			if err != nil {
				fatalf("initial index: %v", err)
			}
			slog.Info("initial index complete", "indexed", stats.Indexed, "skipped", stats.Skipped)

			watcher, err := memory.NewWatcher(e.mgr)
			if err != nil {
				fatalf("watcher: %v", err)
			}
			if err := watcher.Start(ctx); err != nil {
				fatalf("watcher: %v", err)
			}
			defer watcher.Stop()

			scheduler := cron.NewService()
			if expr := e.cfg.Maintenance.IndexSchedule; expr != "" {
				err := scheduler.AddTask("index-sweep", expr, func(ctx context.Context) error {
					_, err := e.mgr.IndexAll(ctx)
					return err
				})
				if err != nil {
					fatalf("scheduling index sweep: %v", err)
				}
			}
			if expr := e.cfg.Maintenance.CompactSchedule; expr != "" {
				summarizer, err := newSummarizer(e.cfg)
				if err != nil {
					fatalf("summarizer: %v", err)
				}
				compactCfg := convo.DefaultCompactorConfig()
				compactCfg.Threshold = e.cfg.Compaction.Threshold
				compactCfg.KeepLast = e.cfg.Compaction.KeepLast
				compactCfg.TokenBudget = e.cfg.Compaction.TokenBudget
				compactor := convo.NewCompactor(e.logs, summarizer, compactCfg)

				err = scheduler.AddTask("compact-sweep", expr, func(ctx context.Context) error {
					_, err := compactor.CompactAll(ctx)
					return err
				})
				if err != nil {
					fatalf("scheduling compact sweep: %v", err)
				}
			}
			if err := scheduler.Start(); err != nil {
				fatalf("scheduler: %v", err)
			}
			defer scheduler.Stop()

			fmt.Println("recall service running; press Ctrl-C to stop")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			slog.Info("shutting down")
		},
	}
}

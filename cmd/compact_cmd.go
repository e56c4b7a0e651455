package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/convo"
)

func compactCmd() *cobra.Command {
	var (
		guild     string
		all       bool
		threshold int
		keepLast  int
	)
	cmd := &cobra.Command{
		Use:   "compact [channel]",
		Short: "Summarize and compact conversation transcripts",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !all && len(args) == 0 {
				fatalf("specify a channel or use --all")
			}

			e := openEngine()
			defer e.Close()

			summarizer, err := newSummarizer(e.cfg)
			if err != nil {
				fatalf("summarizer: %v", err)
			}

			cfg := convo.DefaultCompactorConfig()
			cfg.Threshold = e.cfg.Compaction.Threshold
			cfg.KeepLast = e.cfg.Compaction.KeepLast
			cfg.TokenBudget = e.cfg.Compaction.TokenBudget
			if threshold > 0 {
				cfg.Threshold = threshold
			}
			if keepLast > 0 {
				cfg.KeepLast = keepLast
			}

			compactor := convo.NewCompactor(e.logs, summarizer, cfg)
			ctx := context.Background()

			if all {
				n, err := compactor.CompactAll(ctx)
				if err != nil {
					fatalf("compacting: %v", err)
				}
				fmt.Printf("Compacted %d channels\n", n)
				return
			}

			compacted, err := compactor.Compact(ctx, guild, args[0])
			if err != nil {
				fatalf("compacting %s: %v", args[0], err)
			}
			if compacted {
				fmt.Printf("Compacted %s\n", args[0])
			} else {
				fmt.Printf("%s is below the compaction threshold\n", args[0])
			}
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild scope")
	cmd.Flags().BoolVar(&all, "all", false, "sweep every known channel")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "override message-count trigger")
	cmd.Flags().IntVar(&keepLast, "keep", 0, "override messages kept verbatim")
	return cmd
}

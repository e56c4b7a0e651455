package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/memory"
)

func searchCmd() *cobra.Command {
	var (
		maxResults int
		minScore   float64
		source     string
		guild      string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Hybrid search over indexed memory",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			query := strings.Join(args, " ")
			results, err := e.mgr.Search(context.Background(), query, memory.SearchOptions{
				MaxResults: maxResults,
				MinScore:   minScore,
				Source:     source,
				PathPrefix: convo.GuildPrefix(guild),
			})
			if err != nil {
				fatalf("search: %v", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(results)
				return
			}

			if len(results) == 0 {
				fmt.Println("No results.")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tSOURCE\tLOCATION\tSNIPPET")
			for _, r := range results {
				snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
				if len(snippet) > 100 {
					snippet = snippet[:100] + "..."
				}
				fmt.Fprintf(w, "%.3f\t%s\t%s:%d-%d\t%s\n",
					r.Score, r.Source, r.Path, r.StartLine, r.EndLine, snippet)
			}
			w.Flush()
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum results (default from config)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum relevance score")
	cmd.Flags().StringVar(&source, "source", "", "filter by source (memory, sessions)")
	cmd.Flags().StringVar(&guild, "guild", "", "restrict to a guild's workspace")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

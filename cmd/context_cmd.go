package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func contextCmd() *cobra.Command {
	var guild, channel string
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble the background context block for a query",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			builder := e.newContextBuilder()
			block, err := builder.Build(context.Background(), guild, channel, strings.Join(args, " "))
			if err != nil {
				fatalf("building context: %v", err)
			}
			if block == "" {
				fmt.Println("(no context fits the budget)")
				return
			}
			fmt.Println(block)
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild scope")
	cmd.Flags().StringVar(&channel, "channel", "main", "conversation channel")
	return cmd
}

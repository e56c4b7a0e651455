package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/convo"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Manage conversation transcripts and daily logs",
	}
	cmd.AddCommand(logAppendCmd())
	cmd.AddCommand(logShowCmd())
	cmd.AddCommand(logChannelsCmd())
	cmd.AddCommand(logNoteCmd())
	return cmd
}

func logAppendCmd() *cobra.Command {
	var guild, channel, role, author string
	cmd := &cobra.Command{
		Use:   "append [content]",
		Short: "Append a message to a channel transcript",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			msg := convo.Message{
				Role:      role,
				Author:    author,
				Content:   strings.Join(args, " "),
				Timestamp: time.Now(),
			}
			if err := e.logs.Append(guild, channel, msg); err != nil {
				fatalf("appending message: %v", err)
			}
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild scope")
	cmd.Flags().StringVar(&channel, "channel", "main", "conversation channel")
	cmd.Flags().StringVar(&role, "role", "user", "message role (user, assistant)")
	cmd.Flags().StringVar(&author, "author", "", "author display name")
	return cmd
}

func logShowCmd() *cobra.Command {
	var guild, channel string
	var last int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print recent messages from a channel transcript",
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			msgs, err := e.logs.Recent(guild, channel, last)
			if err != nil {
				fatalf("reading transcript: %v", err)
			}
			fmt.Print(convo.RenderMessages(msgs))
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild scope")
	cmd.Flags().StringVar(&channel, "channel", "main", "conversation channel")
	cmd.Flags().IntVar(&last, "last", 20, "number of messages to show")
	return cmd
}

func logChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List known channels across all guilds",
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			refs, err := e.logs.ListChannels()
			if err != nil {
				fatalf("listing channels: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GUILD\tCHANNEL\tMESSAGES")
			for _, ref := range refs {
				count, _ := e.logs.Count(ref.Guild, ref.Channel)
				guild := ref.Guild
				if guild == "" {
					guild = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\n", guild, ref.Channel, count)
			}
			w.Flush()
		},
	}
}

func logNoteCmd() *cobra.Command {
	var guild string
	cmd := &cobra.Command{
		Use:   "note [entry]",
		Short: "Append an entry to today's daily log",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e := openEngine()
			defer e.Close()

			if err := e.logs.AppendDailyLog(guild, time.Now(), strings.Join(args, " ")); err != nil {
				fatalf("writing daily log: %v", err)
			}
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild scope")
	return cmd
}

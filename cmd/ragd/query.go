package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	ragstream "github.com/haowjy/ragstream-go"
)

var (
	queryMaxResults  int
	queryTemperature float64
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runQuery(ctx, strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxResults, "max-results", 0, "number of chunks to retrieve")
	queryCmd.Flags().Float64Var(&queryTemperature, "temperature", 0, "sampling temperature")
}

func runQuery(ctx context.Context, question string) error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("RAGD_AUTH_TOKEN is required")
	}

	client := ragstream.NewClient(
		cfg.ServerURL,
		ragstream.StaticTokenProvider(cfg.AuthToken),
		ragstream.WithLogger(logger),
	)

	events, err := client.StreamQuery(ctx, &ragstream.QueryRequest{
		Question:    question,
		MaxResults:  queryMaxResults,
		Temperature: queryTemperature,
	})
	if err != nil {
		return err
	}

	printed := 0
	for event := range events {
		if event.Error != nil {
			fmt.Fprintln(os.Stdout)
			return event.Error
		}
		if event.Snapshot != nil {
			fmt.Print(event.Snapshot.Text[printed:])
			printed = len(event.Snapshot.Text)
		}
		if event.Result != nil {
			fmt.Println()
			if len(event.Result.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range event.Result.Sources {
					fmt.Printf("  %s (%.2f)\n", src.URI, src.Score)
				}
			}
			fmt.Printf("\nPrompt version: %s\n", event.Result.PromptVersion)
		}
	}
	return nil
}

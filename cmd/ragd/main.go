// ragd is the RAG service daemon: it serves the query API, ingests
// documents into the index, and answers questions from the command
// line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ragdlog "github.com/haowjy/ragstream-go/log"
)

var (
	cfg    Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Retrieval-augmented generation service",
	Long: `ragd answers questions over a private document corpus.

Documents are chunked, embedded, and indexed in SQLite with sqlite-vec.
Queries embed the question, retrieve the nearest chunks, and stream a
grounded answer over an incremental event stream.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return err
		}
		logger = ragdlog.New("ragd")
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package cli implements the docforge command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose   bool
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "docforge",
	Short: "Document ingestion pipeline",
	Long: `docforge ingests raw documents, extracts and normalises their text,
fingerprints them for deduplication, tags known entities and writes
index-ready records.

Run "docforge worker" to process the queue, "docforge ingest" to
submit documents, and "docforge status" to inspect their progress.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.docforge)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

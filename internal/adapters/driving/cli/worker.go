package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docforge/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingestion worker",
	Long: `Starts the task workers, the maintenance sweep and the dictionary
watcher, then processes queued documents until interrupted.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.queue.Validate(); err != nil {
		return fmt.Errorf("queue not ready: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := p.maintenance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("maintenance sweep stopped: %v", err)
		}
	}()

	if p.settings.DictionaryPath != "" {
		watcher := file.NewDictionaryWatcher(p.settings.DictionaryPath, p.dictionary)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("dictionary watcher stopped: %v", err)
			}
		}()
	}

	cmd.Printf("docforge worker: %d workers, store at %s\n", p.settings.Workers, p.store.Path())

	if err := p.queue.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker: %w", err)
	}
	cmd.Println("Worker stopped.")
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

var (
	ingestCollection string
	ingestType       string
	ingestWait       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Submit documents for ingestion",
	Long: `Submits files to the ingestion pipeline. Each file's path is used as
its foreign ID, so resubmitting a file that is still in flight returns
the existing document instead of duplicating work.

Submitted tasks are durable: without --wait they are processed by the
next "docforge worker" run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "collection ID for this batch")
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "", "declared media type hint")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "process the queue before returning")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc := ingestor
	var p *pipeline
	if svc == nil {
		var err error
		p, err = buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()
		svc = p.coordinator
	}

	var started chan error
	if ingestWait && p != nil {
		if err := p.queue.Validate(); err != nil {
			return fmt.Errorf("queue not ready: %w", err)
		}
		started = make(chan error, 1)
		go func() {
			started <- p.queue.Start(ctx)
		}()
	}

	documentIDs := make([]string, 0, len(args))
	for _, path := range args {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		req := &domain.IngestRequest{
			ForeignID:    path,
			Payload:      payload,
			DeclaredType: ingestType,
			CollectionID: ingestCollection,
		}
		documentID, err := svc.Submit(ctx, req)
		if err != nil {
			return fmt.Errorf("submitting %s: %w", path, err)
		}
		documentIDs = append(documentIDs, documentID)
		cmd.Printf("%s\t%s\n", documentID, path)
	}

	if started == nil {
		return nil
	}

	// Wait for the submitted work (and any archive expansions) to finish.
	if err := p.queue.Drain(ctx); err != nil {
		return fmt.Errorf("waiting for pipeline: %w", err)
	}
	if err := p.queue.Stop(); err != nil {
		return fmt.Errorf("stopping queue: %w", err)
	}
	if err := <-started; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("processing queue: %w", err)
	}

	for _, documentID := range documentIDs {
		status, err := svc.Status(ctx, documentID)
		if err != nil {
			return fmt.Errorf("fetching status for %s: %w", documentID, err)
		}
		cmd.Printf("%s\t%s\n", documentID, status.Stage)
	}
	return nil
}

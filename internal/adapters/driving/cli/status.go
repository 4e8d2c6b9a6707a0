package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's pipeline status",
	Long: `Shows the document's current pipeline stage. For failed documents
the error class and message are included; for indexed documents a
summary of the index record is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	documentID := args[0]

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

	status, err := svc.Status(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	cmd.Printf("Document:   %s\n", status.DocumentID)
	cmd.Printf("Foreign ID: %s\n", status.ForeignID)
	if status.CollectionID != "" {
		cmd.Printf("Collection: %s\n", status.CollectionID)
	}
	cmd.Printf("Stage:      %s\n", status.Stage)
	cmd.Printf("Updated:    %s\n", status.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

	switch status.Stage {
	case domain.StageDeduplicated:
		cmd.Printf("Duplicate of: %s\n", status.DuplicateOf)
	case domain.StageFailed:
		cmd.Printf("Failed stage: %s\n", status.FailedStage)
		cmd.Printf("Error class:  %s\n", status.LastErrorClass)
		cmd.Printf("Error:        %s\n", status.LastError)
	case domain.StageIndexed:
		if p != nil {
			printIndexSummary(ctx, cmd, p, documentID)
		}
	}
	return nil
}

// printIndexSummary is best effort; the status above is already complete.
func printIndexSummary(ctx context.Context, cmd *cobra.Command, p *pipeline, documentID string) {
	record, err := p.store.GetIndexRecord(ctx, documentID)
	if err != nil || record == nil {
		return
	}

	cmd.Printf("Text:       %d characters\n", len(record.Text))
	if len(record.Languages) > 0 {
		cmd.Printf("Languages: ")
		for _, guess := range record.Languages {
			cmd.Printf(" %s (%.2f)", guess.Code, guess.Confidence)
		}
		cmd.Println()
	}
	cmd.Printf("Entities:   %d\n", len(record.Entities))
	for _, warning := range record.Warnings {
		cmd.Printf("Warning:    [%s] %s\n", warning.Class, warning.Message)
	}
}

// Package summarize defines the hook through which an external model shortens record content.
// No model is bundled; callers supply a Summarizer.
package summarize

import (
	"context"
	"fmt"

	"github.com/sha1n/devops-rag/internal/domain"
)

// DefaultPrompt is the instruction a model-backed Summarizer is expected to apply.
const DefaultPrompt = "Summarize the following content concisely, preserving identifiers and intent."

// Summarizer turns text into a shorter text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string) (string, error)

// Summarize calls f(ctx, text).
func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Records fills the Summary of each record in order.
// The first failure stops processing and is returned with the record's path.
func Records(ctx context.Context, records []domain.Record, s Summarizer) error {
	if s == nil {
		return nil
	}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary, err := s.Summarize(ctx, records[i].Content)
		if err != nil {
			return fmt.Errorf("failed to summarize %s: %w", records[i].DocID(), err)
		}
		records[i].Summary = summary
	}
	return nil
}

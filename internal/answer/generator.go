// Package answer turns a question and retrieved context chunks into a
// user-facing answer. The retrieval core treats generation as an injected
// collaborator so it stays testable without a live model.
package answer

import (
	"context"
	"fmt"
	"strings"
)

// maxContexts bounds how many retrieved chunks feed the answer.
const maxContexts = 10

// Generator produces an answer grounded in the retrieved contexts.
type Generator interface {
	Generate(ctx context.Context, question string, contexts []string) (string, error)
}

// TemplateGenerator is the offline implementation: it answers by quoting the
// most relevant contexts verbatim. Used when no LLM is configured, and as the
// deterministic generator in tests.
type TemplateGenerator struct{}

// NewTemplateGenerator returns the offline answer generator.
func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

// Generate formats the top contexts into a readable extract-style answer.
func (g *TemplateGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	trimmed := make([]string, 0, 3)
	for _, c := range contexts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(c) > 500 {
			c = c[:500] + "..."
		}
		trimmed = append(trimmed, c)
		if len(trimmed) == 3 {
			break
		}
	}

	if len(trimmed) == 0 {
		return fmt.Sprintf("No relevant content found for %q. Upload documents first.", question), nil
	}

	return fmt.Sprintf("Based on the uploaded documents:\n\n%s", strings.Join(trimmed, "\n\n---\n\n")), nil
}

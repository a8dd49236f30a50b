package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator answers questions with a chat completion grounded in the
// retrieved contexts.
type OpenAIGenerator struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIGenerator creates a generator using the given API key.
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIGenerator{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// Generate builds a grounded tutoring prompt from the contexts and asks the
// model. Contexts beyond maxContexts are dropped; they ranked lowest.
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	if len(contexts) > maxContexts {
		contexts = contexts[:maxContexts]
	}

	prompt := fmt.Sprintf(`You are Learnix, an AI tutor that answers questions using the student's uploaded course materials.

Context from uploaded materials:
---
%s
---

Question: %s

Answer the question using the context above. If the context does not contain
the answer, say so briefly instead of inventing one. Use clean Markdown:
headings for structure, **bold** for key terms, bullet points for lists.`,
		strings.Join(contexts, "\n\n"), question)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: g.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator produces chat completions from a Gemini generative model.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	slog.DebugContext(ctx, "generating answer", "model", g.model, "prompt_length", len(prompt))
	gm := g.client.GenerativeModel(g.model)
	res, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "error", err)
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("empty answer in response")
	}
	return answer, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

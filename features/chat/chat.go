package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"refbook/features/project"
	"refbook/features/resource"
	"refbook/internal/retrieval"
)

const (
	// UngroundedAnswer is returned when the project has no retrievable
	// content. It is a legitimate conversational outcome, not an error.
	UngroundedAnswer = "I don't have any resources to search. Please add some URLs first."

	maxHistoryTurns  = 5
	maxExcerptLength = 200

	systemPrompt = `You are a helpful assistant that answers questions based ONLY on the provided context.
If the context doesn't contain enough information to answer the question, say "I don't have enough information in the provided resources to answer this question."
Always cite which source(s) you used to answer the question.`
)

// ErrGenerationFailure wraps upstream model errors so handlers can mark the
// request retryable.
var ErrGenerationFailure = errors.New("answer generation failed")

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Message     string   `json:"message"`
	ResourceIDs []string `json:"resource_ids,omitempty"`
	History     []Turn   `json:"conversation_history,omitempty"`
}

type Source struct {
	ResourceID string  `json:"resource_id"`
	URL        string  `json:"url"`
	Excerpt    string  `json:"content"`
	Score      float32 `json:"score"`
}

type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type ProjectGetter interface {
	Get(ctx context.Context, id string) (*project.Project, error)
}

type ResourceLister interface {
	ListReady(ctx context.Context, projectID string) ([]resource.Resource, error)
}

type Retriever interface {
	Search(ctx context.Context, projectID, query string, scope []retrieval.ResourceScope, limit int) ([]retrieval.SearchResult, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	projects        ProjectGetter
	resources       ResourceLister
	retriever       Retriever
	generator       Generator
	topK            int
	generateTimeout time.Duration
}

func NewService(projects ProjectGetter, resources ResourceLister, retriever Retriever, generator Generator, topK int, generateTimeout time.Duration) *Service {
	return &Service{
		projects:        projects,
		resources:       resources,
		retriever:       retriever,
		generator:       generator,
		topK:            topK,
		generateTimeout: generateTimeout,
	}
}

// Ask answers a question grounded in the project's ready resources. The
// request may narrow the scope to specific resources; ids that are unknown
// or not ready are silently excluded rather than erroring.
func (s *Service) Ask(ctx context.Context, projectID string, req Request) (*Response, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	scope, err := s.resolveScope(ctx, projectID, req.ResourceIDs)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return &Response{Answer: UngroundedAnswer, Sources: []Source{}}, nil
	}

	results, err := s.retriever.Search(ctx, projectID, req.Message, scope, s.topK)
	if errors.Is(err, retrieval.ErrEmptyIndex) {
		return &Response{Answer: UngroundedAnswer, Sources: []Source{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Response{Answer: UngroundedAnswer, Sources: []Source{}}, nil
	}

	prompt := buildPrompt(results, req.History, req.Message)

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	answer, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "error", err, "project_id", projectID)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	return &Response{Answer: answer, Sources: collectSources(results)}, nil
}

// resolveScope maps the requested resource ids onto the committed
// (resource, generation) pairs that retrieval may read. No ids means all
// ready resources.
func (s *Service) resolveScope(ctx context.Context, projectID string, resourceIDs []string) ([]retrieval.ResourceScope, error) {
	ready, err := s.resources.ListReady(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var requested map[string]bool
	if len(resourceIDs) > 0 {
		requested = make(map[string]bool, len(resourceIDs))
		for _, id := range resourceIDs {
			requested[id] = true
		}
	}

	var scope []retrieval.ResourceScope
	for _, res := range ready {
		if requested != nil && !requested[res.ID] {
			continue
		}
		scope = append(scope, retrieval.ResourceScope{ResourceID: res.ID, Generation: res.Generation})
	}
	return scope, nil
}

func buildPrompt(results []retrieval.SearchResult, history []Turn, question string) string {
	contextParts := make([]string, 0, len(results))
	for _, r := range results {
		contextParts = append(contextParts, fmt.Sprintf("[Source: %s]\n%s", r.URL, r.Content))
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	historyParts := make([]string, 0, len(history))
	for _, turn := range history {
		historyParts = append(historyParts, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(contextParts, "\n\n---\n\n"))
	sb.WriteString("\n\nPrevious conversation:\n")
	sb.WriteString(strings.Join(historyParts, "\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// collectSources keeps the best-scoring chunk per resource. Results arrive
// sorted by descending score, so the first hit per resource wins.
func collectSources(results []retrieval.SearchResult) []Source {
	seen := make(map[string]bool, len(results))
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if seen[r.ResourceID] {
			continue
		}
		seen[r.ResourceID] = true
		sources = append(sources, Source{
			ResourceID: r.ResourceID,
			URL:        r.URL,
			Excerpt:    excerpt(r.Content),
			Score:      r.Score,
		})
	}
	return sources
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= maxExcerptLength {
		return content
	}
	return string(runes[:maxExcerptLength]) + "..."
}

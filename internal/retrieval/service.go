package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrEmptyIndex signals that the requested scope has no indexed content yet.
// It is a legitimate "nothing to answer from" condition, not a failure.
var ErrEmptyIndex = errors.New("no indexed content in scope")

// ResourceScope pins a resource to its committed chunk generation. Searches
// only ever see committed generations, so an in-flight re-index is invisible
// to readers until it lands.
type ResourceScope struct {
	ResourceID string
	Generation string
}

// Match is a raw store hit. Distance is cosine distance (lower = closer).
type Match struct {
	Content    string
	URL        string
	ResourceID string
	ChunkIndex int
	Distance   float32
}

type SearchResult struct {
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
	URL        string  `json:"url"`
	ResourceID string  `json:"resource_id"`
	ChunkIndex int     `json:"chunk_index"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, projectID string, vector []float32, limit int, scope []ResourceScope) ([]Match, error)
}

type Service struct {
	embedder Embedder
	store    Searcher
	logger   *QueryLogger
}

func NewService(e Embedder, s Searcher, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, logger: l}
}

// Search embeds the query and returns the top-limit chunks within scope,
// scored and ordered by descending relevance.
func (s *Service) Search(ctx context.Context, projectID, query string, scope []ResourceScope, limit int) ([]SearchResult, error) {
	start := time.Now()

	if len(scope) == 0 {
		return nil, ErrEmptyIndex
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Search(ctx, projectID, vec, limit, scope)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			Content:    m.Content,
			Score:      Score(m.Distance),
			URL:        m.URL,
			ResourceID: m.ResourceID,
			ChunkIndex: m.ChunkIndex,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if s.logger != nil {
		s.logger.Log(ctx, QueryLogEntry{
			ProjectID:  projectID,
			Query:      query,
			NumResults: len(results),
			Duration:   time.Since(start),
		})
	}

	return results, nil
}

// Score maps a cosine distance onto (0, 1]: 1/(1+d). Identical vectors score
// 1.0 and the score decays monotonically with distance. Negative distances
// (float noise from the store) clamp to 1.0.
func Score(distance float32) float32 {
	if distance < 0 {
		return 1
	}
	return 1 / (1 + distance)
}

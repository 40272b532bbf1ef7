package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"refbook/features/project"
	"refbook/features/resource"
	"refbook/internal/retrieval"
)

// --- Mocks ---

type MockProjects struct {
	mock.Mock
}

func (m *MockProjects) Get(ctx context.Context, id string) (*project.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*project.Project), args.Error(1)
}

type MockResources struct {
	mock.Mock
}

func (m *MockResources) ListReady(ctx context.Context, projectID string) ([]resource.Resource, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resource.Resource), args.Error(1)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Search(ctx context.Context, projectID, query string, scope []retrieval.ResourceScope, limit int) ([]retrieval.SearchResult, error) {
	args := m.Called(ctx, projectID, query, scope, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchResult), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func newTestService(projects *MockProjects, resources *MockResources, retriever *MockRetriever, generator *MockGenerator) *Service {
	return NewService(projects, resources, retriever, generator, 5, 10*time.Second)
}

func readyResource(id, generation string) resource.Resource {
	return resource.Resource{ID: id, ProjectID: "p1", Status: resource.StatusReady, Generation: generation, URL: "https://example.com/" + id}
}

// --- Tests ---

func TestService_Ask_Grounded(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	generator := new(MockGenerator)
	svc := newTestService(projects, resources, retriever, generator)

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{readyResource("r1", "g1")}, nil).Once()

	expectedScope := []retrieval.ResourceScope{{ResourceID: "r1", Generation: "g1"}}
	retriever.On("Search", ctx, "p1", "what is this?", expectedScope, 5).Return([]retrieval.SearchResult{
		{Content: "The project ships a RAG engine.", URL: "https://example.com/r1", ResourceID: "r1", Score: 0.9},
		{Content: "Another chunk from the same page.", URL: "https://example.com/r1", ResourceID: "r1", Score: 0.7},
	}, nil).Once()

	generator.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "[Source: https://example.com/r1]") &&
			strings.Contains(prompt, "The project ships a RAG engine.") &&
			strings.Contains(prompt, "Question: what is this?")
	})).Return("It is a RAG engine.", nil).Once()

	resp, err := svc.Ask(ctx, "p1", Request{Message: "what is this?"})
	assert.NoError(t, err)
	assert.Equal(t, "It is a RAG engine.", resp.Answer)
	// sources deduplicated per resource, best score first
	assert.Len(t, resp.Sources, 1)
	assert.Equal(t, "r1", resp.Sources[0].ResourceID)
	assert.Equal(t, float32(0.9), resp.Sources[0].Score)
	generator.AssertExpectations(t)
}

func TestService_Ask_NoReadyResources(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	generator := new(MockGenerator)
	svc := newTestService(projects, resources, retriever, generator)

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{}, nil).Once()

	resp, err := svc.Ask(ctx, "p1", Request{Message: "anything?"})
	assert.NoError(t, err)
	assert.Equal(t, UngroundedAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	retriever.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestService_Ask_FiltersToRequestedResources(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	generator := new(MockGenerator)
	svc := newTestService(projects, resources, retriever, generator)

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{
		readyResource("r1", "g1"),
		readyResource("r2", "g5"),
	}, nil).Once()

	// only r2 requested; the unknown id is silently dropped
	expectedScope := []retrieval.ResourceScope{{ResourceID: "r2", Generation: "g5"}}
	retriever.On("Search", ctx, "p1", "q", expectedScope, 5).Return([]retrieval.SearchResult{
		{Content: "from r2", URL: "https://example.com/r2", ResourceID: "r2", Score: 0.8},
	}, nil).Once()
	generator.On("Generate", mock.Anything, mock.Anything).Return("answer", nil).Once()

	resp, err := svc.Ask(ctx, "p1", Request{Message: "q", ResourceIDs: []string{"r2", "not-ready"}})
	assert.NoError(t, err)
	assert.Len(t, resp.Sources, 1)
	assert.Equal(t, "r2", resp.Sources[0].ResourceID)
	retriever.AssertExpectations(t)
}

func TestService_Ask_AllRequestedNotReady(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	svc := newTestService(projects, resources, retriever, new(MockGenerator))

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{readyResource("r1", "g1")}, nil).Once()

	resp, err := svc.Ask(ctx, "p1", Request{Message: "q", ResourceIDs: []string{"still-processing"}})
	assert.NoError(t, err)
	assert.Equal(t, UngroundedAnswer, resp.Answer)
	retriever.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Ask_ProjectNotFound(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	svc := newTestService(projects, new(MockResources), new(MockRetriever), new(MockGenerator))

	projects.On("Get", ctx, "missing").Return(nil, project.ErrNotFound).Once()

	_, err := svc.Ask(ctx, "missing", Request{Message: "q"})
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestService_Ask_EmptyIndex(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	svc := newTestService(projects, resources, retriever, new(MockGenerator))

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{readyResource("r1", "g1")}, nil).Once()
	retriever.On("Search", ctx, "p1", "q", mock.Anything, 5).Return(nil, retrieval.ErrEmptyIndex).Once()

	resp, err := svc.Ask(ctx, "p1", Request{Message: "q"})
	assert.NoError(t, err)
	assert.Equal(t, UngroundedAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestService_Ask_GenerationFailure(t *testing.T) {
	ctx := context.Background()
	projects := new(MockProjects)
	resources := new(MockResources)
	retriever := new(MockRetriever)
	generator := new(MockGenerator)
	svc := newTestService(projects, resources, retriever, generator)

	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1"}, nil).Once()
	resources.On("ListReady", ctx, "p1").Return([]resource.Resource{readyResource("r1", "g1")}, nil).Once()
	retriever.On("Search", ctx, "p1", "q", mock.Anything, 5).Return([]retrieval.SearchResult{
		{Content: "chunk", URL: "u", ResourceID: "r1", Score: 0.5},
	}, nil).Once()
	generator.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("model overloaded")).Once()

	_, err := svc.Ask(ctx, "p1", Request{Message: "q"})
	assert.ErrorIs(t, err, ErrGenerationFailure)
}

func TestBuildPrompt_HistoryTruncated(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "turn 1"},
		{Role: "assistant", Content: "turn 2"},
		{Role: "user", Content: "turn 3"},
		{Role: "assistant", Content: "turn 4"},
		{Role: "user", Content: "turn 5"},
		{Role: "assistant", Content: "turn 6"},
		{Role: "user", Content: "turn 7"},
	}
	results := []retrieval.SearchResult{{Content: "ctx", URL: "u", ResourceID: "r1"}}

	prompt := buildPrompt(results, history, "final question")
	assert.NotContains(t, prompt, "turn 1")
	assert.NotContains(t, prompt, "turn 2")
	assert.Contains(t, prompt, "user: turn 3")
	assert.Contains(t, prompt, "user: turn 7")
	assert.Contains(t, prompt, "Question: final question")
}

func TestExcerpt_Truncation(t *testing.T) {
	short := "short content"
	assert.Equal(t, short, excerpt(short))

	long := strings.Repeat("x", 250)
	got := excerpt(long)
	assert.Equal(t, strings.Repeat("x", 200)+"...", got)
}

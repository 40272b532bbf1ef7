package project

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("project not found")

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats summarizes resource progress inside a project.
type Stats struct {
	Total      int `json:"total"`
	Ready      int `json:"ready"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Error      int `json:"error"`
}

type Repository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error
}

type ResourceCounter interface {
	CountByStatus(ctx context.Context, projectID string) (map[string]int, error)
}

type ChunkIndex interface {
	DeleteProject(ctx context.Context, projectID string) error
}

type Service struct {
	repo      Repository
	resources ResourceCounter
	index     ChunkIndex
}

func NewService(repo Repository, resources ResourceCounter, index ChunkIndex) *Service {
	return &Service{repo: repo, resources: resources, index: index}
}

func (s *Service) Create(ctx context.Context, name, description string) (*Project, error) {
	p := &Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update: nil fields keep their current value.
func (s *Service) Update(ctx context.Context, id string, name, description *string) (*Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the project row, cascading to its resources and shares via
// foreign keys, then purges the project's chunks from the index.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteProject(ctx, id); err != nil {
		slog.WarnContext(ctx, "failed to delete project chunks", "error", err, "project_id", id)
	}
	return nil
}

func (s *Service) Stats(ctx context.Context, id string) (*Stats, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	counts, err := s.resources.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Ready:      counts["ready"],
		Pending:    counts["pending"],
		Processing: counts["processing"],
		Error:      counts["error"],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"refbook/internal/config"
	"refbook/internal/ingest"
	"refbook/internal/middleware"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrDuplicate       = errors.New("resource url already exists in project")
	ErrConflict        = errors.New("resource is currently processing")
	ErrInvalidURL      = errors.New("url must be an absolute http or https url")
)

type Resource struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Generation   string    `json:"-"`
	RunID        string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, res *Resource) error
	Get(ctx context.Context, projectID, id string) (*Resource, error)
	List(ctx context.Context, projectID string) ([]Resource, error)
	ListReady(ctx context.Context, projectID string) ([]Resource, error)
	Delete(ctx context.Context, projectID, id string) error
	BeginRun(ctx context.Context, projectID, id, runID string) error
	FailRun(ctx context.Context, resourceID, runID, message string) error
	CountByStatus(ctx context.Context, projectID string) (map[string]int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// ChunkIndex is the vector-store surface the lifecycle needs: removing a
// resource's chunks when the resource itself goes away.
type ChunkIndex interface {
	DeleteResource(ctx context.Context, resourceID string) error
}

type Service struct {
	repo  Repository
	pub   EventPublisher
	index ChunkIndex
}

func NewService(repo Repository, pub EventPublisher, index ChunkIndex) *Service {
	return &Service{repo: repo, pub: pub, index: index}
}

// Add registers a URL in a project and queues its first ingestion run.
func (s *Service) Add(ctx context.Context, projectID, rawURL, name string) (*Resource, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	res := &Resource{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		URL:       rawURL,
		Name:      name,
		Status:    StatusPending,
		RunID:     uuid.New().String(),
	}
	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}

	s.queueRun(ctx, res, false)
	return res, nil
}

// Refresh queues a re-ingestion run for a ready or failed resource. A
// resource that is pending or processing already has a run in flight and is
// rejected with ErrConflict.
func (s *Service) Refresh(ctx context.Context, projectID, id string) (*Resource, error) {
	runID := uuid.New().String()
	if err := s.repo.BeginRun(ctx, projectID, id, runID); err != nil {
		return nil, err
	}

	res, err := s.repo.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	s.queueRun(ctx, res, true)
	return res, nil
}

func (s *Service) Get(ctx context.Context, projectID, id string) (*Resource, error) {
	return s.repo.Get(ctx, projectID, id)
}

func (s *Service) List(ctx context.Context, projectID string) ([]Resource, error) {
	return s.repo.List(ctx, projectID)
}

// Delete removes the resource row first, then its chunks. Once the row is
// gone an in-flight run can no longer commit, so a failed index cleanup
// leaves orphans that the next prune pass will never resurrect into results.
func (s *Service) Delete(ctx context.Context, projectID, id string) error {
	if err := s.repo.Delete(ctx, projectID, id); err != nil {
		return err
	}
	if err := s.index.DeleteResource(ctx, id); err != nil {
		slog.WarnContext(ctx, "failed to delete resource chunks", "error", err, "resource_id", id)
	}
	return nil
}

func (s *Service) CountByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	return s.repo.CountByStatus(ctx, projectID)
}

// queueRun publishes the ingest task for the resource's current run. A
// publish failure may never leave the row stuck in pending with no run on
// the queue, so it is recorded as a run failure: the row flips to error and
// a later refresh can re-enter the state machine.
func (s *Service) queueRun(ctx context.Context, res *Resource, refresh bool) {
	payload, _ := json.Marshal(ingest.TaskPayload{
		ProjectID:     res.ProjectID,
		ResourceID:    res.ID,
		URL:           res.URL,
		RunID:         res.RunID,
		Refresh:       refresh,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicResourceIngest, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "resource_id", res.ID)
		const message = "failed to queue ingestion run"
		if failErr := s.repo.FailRun(ctx, res.ID, res.RunID, message); failErr != nil {
			slog.ErrorContext(ctx, "failed to record queue failure", "error", failErr, "resource_id", res.ID)
			return
		}
		res.Status = StatusError
		res.ErrorMessage = message
		return
	}
	slog.InfoContext(ctx, "published ingest task", "resource_id", res.ID, "url", res.URL, "refresh", refresh)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

package share

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"refbook/features/chat"
	"refbook/features/project"
	"refbook/features/resource"
)

var (
	ErrNotFound         = errors.New("share session not found")
	ErrNoReadyResources = errors.New("project has no ready resources to share")
)

// Session is a capability token: anyone holding its id gets read-only chat
// access to the project's ready resources.
type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Resolved is what a token holder may see: the project and its ready
// resources, nothing about pending or failed ones.
type Resolved struct {
	Session   Session             `json:"session"`
	Project   project.Project     `json:"project"`
	Resources []resource.Resource `json:"resources"`
}

type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByProject(ctx context.Context, projectID string) ([]Session, error)
	Delete(ctx context.Context, id string) error
}

type ProjectGetter interface {
	Get(ctx context.Context, id string) (*project.Project, error)
}

type ResourceLister interface {
	ListReady(ctx context.Context, projectID string) ([]resource.Resource, error)
}

type ChatService interface {
	Ask(ctx context.Context, projectID string, req chat.Request) (*chat.Response, error)
}

type Service struct {
	repo      Repository
	projects  ProjectGetter
	resources ResourceLister
	chat      ChatService
}

func NewService(repo Repository, projects ProjectGetter, resources ResourceLister, chatSvc ChatService) *Service {
	return &Service{repo: repo, projects: projects, resources: resources, chat: chatSvc}
}

// Create issues a share token for a project. Sharing an empty project is
// rejected: a token with nothing retrievable behind it is useless.
func (s *Service) Create(ctx context.Context, projectID, name string) (*Session, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ready, err := s.resources.ListReady(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, ErrNoReadyResources
	}

	if name == "" {
		name = p.Name
	}
	session := &Session{
		ID:        uuid.New().String()[:8],
		ProjectID: projectID,
		Name:      name,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Resolve looks up a token and returns the shared view. Only ready
// resources are exposed.
func (s *Service) Resolve(ctx context.Context, shareID string) (*Resolved, error) {
	session, err := s.repo.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}

	p, err := s.projects.Get(ctx, session.ProjectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ready, err := s.resources.ListReady(ctx, session.ProjectID)
	if err != nil {
		return nil, err
	}
	if ready == nil {
		ready = []resource.Resource{}
	}
	return &Resolved{Session: *session, Project: *p, Resources: ready}, nil
}

// Chat answers a question through a share token. The token is re-resolved
// on every call, so a deleted share or project cuts access immediately. The
// scope is always all ready resources; callers cannot narrow it.
func (s *Service) Chat(ctx context.Context, shareID, message string, history []chat.Turn) (*chat.Response, error) {
	session, err := s.repo.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}

	resp, err := s.chat.Ask(ctx, session.ProjectID, chat.Request{Message: message, History: history})
	if errors.Is(err, project.ErrNotFound) {
		return nil, ErrNotFound
	}
	return resp, err
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]Session, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

func (s *Service) Delete(ctx context.Context, shareID string) error {
	return s.repo.Delete(ctx, shareID)
}

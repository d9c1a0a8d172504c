package project

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/rbac"
)

type ProjectStore interface {
	Insert(ctx context.Context, p *model.Project) (int, error)
	GetByID(ctx context.Context, id int) (*model.Project, error)
	ListByMember(ctx context.Context, userID int) ([]model.Project, error)
	AssignMentor(ctx context.Context, projectID, mentorID int) error
	Delete(ctx context.Context, id int) error
}

type UserStore interface {
	FindByID(ctx context.Context, id int) (*model.User, error)
}

type Service struct {
	projects ProjectStore
	users    UserStore
	logger   *zap.Logger
}

func NewService(projects ProjectStore, users UserStore, logger *zap.Logger) *Service {
	return &Service{
		projects: projects,
		users:    users,
		logger:   logger,
	}
}

// Create starts a new project with the actor as initiator.
func (s *Service) Create(ctx context.Context, actor model.Actor, title, description string) (*model.Project, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("project title is required")
	}

	p := &model.Project{
		Title:       title,
		Description: description,
		InitiatorID: actor.ID,
		Status:      model.ProjectStatusActive,
		CreatedAt:   time.Now(),
	}
	id, err := s.projects.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	s.logger.Info("Project created",
		zap.Int("project_id", p.ID),
		zap.Int("initiator_id", actor.ID),
	)
	return p, nil
}

// Get returns one project. Members and moderators only.
func (s *Service) Get(ctx context.Context, actor model.Actor, projectID int) (*model.Project, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.IsMember(actor.ID) && !rbac.HasPermission(actor.Role, rbac.PermissionModerate) {
		return nil, apperr.Forbidden("not a member of this project")
	}
	return p, nil
}

// List returns the projects the actor initiates or mentors.
func (s *Service) List(ctx context.Context, actor model.Actor) ([]model.Project, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	return s.projects.ListByMember(ctx, actor.ID)
}

// AssignMentor attaches a mentor to the project. Only the initiator may do
// this, and the assignee must hold the mentor role.
func (s *Service) AssignMentor(ctx context.Context, actor model.Actor, projectID, mentorID int) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.InitiatorID != actor.ID {
		return apperr.Forbidden("only the initiator can assign a mentor")
	}

	mentor, err := s.users.FindByID(ctx, mentorID)
	if err != nil {
		return err
	}
	if mentor.Role != rbac.RoleMentor {
		return apperr.Validation("assignee does not hold the mentor role")
	}

	if err := s.projects.AssignMentor(ctx, projectID, mentorID); err != nil {
		return err
	}
	s.logger.Info("Mentor assigned",
		zap.Int("project_id", projectID),
		zap.Int("mentor_id", mentorID),
	)
	return nil
}

// Delete removes the project and, via cascade, everything under it.
func (s *Service) Delete(ctx context.Context, actor model.Actor, projectID int) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.InitiatorID != actor.ID && !rbac.HasPermission(actor.Role, rbac.PermissionModerate) {
		return apperr.Forbidden("only the initiator can delete a project")
	}

	if err := s.projects.Delete(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("Project deleted", zap.Int("project_id", projectID))
	return nil
}

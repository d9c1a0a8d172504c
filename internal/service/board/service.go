package board

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projecthub/contracts/feed"
	"projecthub/internal/apperr"
	feedemit "projecthub/internal/feed"
	"projecthub/internal/model"
	"projecthub/pkg/metrics"
	"projecthub/pkg/rbac"
)

type TaskStore interface {
	Insert(ctx context.Context, t *model.Task) (int, error)
	GetByID(ctx context.Context, id int) (*model.Task, error)
	ListByProject(ctx context.Context, projectID int) ([]model.Task, error)
	MaxPositionForStatus(ctx context.Context, projectID int, status string) (int, error)
	Move(ctx context.Context, id int, patch model.TaskPatch, shift *model.PositionShift) error
	Update(ctx context.Context, id int, patch model.TaskPatch) error
	Delete(ctx context.Context, id int) error
	CountByStatus(ctx context.Context, projectID int) (*model.TaskStats, error)
}

type CommentStore interface {
	Insert(ctx context.Context, c *model.TaskComment) (int, error)
	ListByTask(ctx context.Context, taskID int) ([]model.TaskComment, error)
}

type ProjectStore interface {
	GetByID(ctx context.Context, id int) (*model.Project, error)
}

// StatsCache is satisfied by *cache.JSONCache. All methods are best-effort.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, v any)
	Delete(ctx context.Context, key string)
}

func normalizeAssignee(raw string) (*int, error) {
	id, ok := model.NormalizeAssignee(raw)
	if !ok {
		return nil, apperr.Validation("assignee must be a user id or \"unassigned\"")
	}
	return id, nil
}

// Service manages task fields and column ordering for the kanban board,
// including the drag-and-drop move.
type Service struct {
	tasks    TaskStore
	comments CommentStore
	projects ProjectStore
	emitter  *feedemit.Emitter
	cache    StatsCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	tasks TaskStore,
	comments CommentStore,
	projects ProjectStore,
	emitter *feedemit.Emitter,
	cache StatsCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		tasks:    tasks,
		comments: comments,
		projects: projects,
		emitter:  emitter,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

func taskStatsCacheKey(projectID int) string {
	return fmt.Sprintf("stats:tasks:%d", projectID)
}

type CreateInput struct {
	ProjectID   int
	Title       string
	Description string
	Status      string // defaults to todo
	Priority    string // defaults to medium
	Assignee    string // raw token, "unassigned" normalized away
	DueDate     *time.Time
}

func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Task, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}

	if in.Status == "" {
		in.Status = model.TaskStatusTodo
	}
	if !model.ValidTaskStatus(in.Status) {
		return nil, apperr.Validation("unknown task status " + in.Status)
	}
	if in.Priority == "" {
		in.Priority = model.TaskPriorityMedium
	}
	if !model.ValidTaskPriority(in.Priority) {
		return nil, apperr.Validation("unknown task priority " + in.Priority)
	}

	assignedTo, err := normalizeAssignee(in.Assignee)
	if err != nil {
		return nil, err
	}

	if _, err := s.projects.GetByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	// Position goes to the end of the destination column.
	maxPos, err := s.tasks.MaxPositionForStatus(ctx, in.ProjectID, in.Status)
	if err != nil {
		return nil, err
	}

	t := &model.Task{
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssignedTo:  assignedTo,
		CreatedBy:   actor.ID,
		DueDate:     in.DueDate,
		Position:    maxPos + 1,
	}

	id, err := s.tasks.Insert(ctx, t)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, feed.TableTasks, feed.KindInsert, id, in.ProjectID)
	s.invalidateStats(ctx, in.ProjectID)

	return s.tasks.GetByID(ctx, id)
}

type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	Assignee    *string // nil leaves unchanged; "" or "unassigned" clears
	DueDate     *time.Time
	ClearDue    bool
}

// Update applies a partial field update. Moves between columns go through
// Move, not here.
func (s *Service) Update(ctx context.Context, actor model.Actor, id int, in UpdateInput) (*model.Task, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	existing, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil && *in.Title == "" {
		return nil, apperr.Validation("title cannot be empty")
	}
	if in.Priority != nil && !model.ValidTaskPriority(*in.Priority) {
		return nil, apperr.Validation("unknown task priority " + *in.Priority)
	}

	patch := model.TaskPatch{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		DueDate:      in.DueDate,
		ClearDueDate: in.ClearDue,
	}

	if in.Assignee != nil {
		assignedTo, err := normalizeAssignee(*in.Assignee)
		if err != nil {
			return nil, err
		}
		if assignedTo == nil {
			patch.ClearAssignee = true
		} else {
			patch.AssignedTo = assignedTo
		}
	}

	if err := s.tasks.Update(ctx, id, patch); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, feed.TableTasks, feed.KindUpdate, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)

	return s.tasks.GetByID(ctx, id)
}

// Move is the drag-and-drop handler: it places the task in a (possibly new)
// status column at the target position. Entering a new column shifts the
// tasks already at position >= newPosition up by one to make room; the shift
// and the moved task's write commit together, so readers never see a
// half-applied reorder.
func (s *Service) Move(ctx context.Context, actor model.Actor, id int, newStatus string, newPosition int) (*model.Task, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	if !model.ValidTaskStatus(newStatus) {
		return nil, apperr.Validation("unknown task status " + newStatus)
	}
	if newPosition < 0 {
		return nil, apperr.Validation("position cannot be negative")
	}

	existing, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := model.TaskPatch{
		Status:   &newStatus,
		Position: &newPosition,
	}

	var shift *model.PositionShift
	if newStatus != existing.Status {
		shift = &model.PositionShift{
			ProjectID:    existing.ProjectID,
			Status:       newStatus,
			FromPosition: newPosition,
		}

		switch {
		case newStatus == model.TaskStatusCompleted:
			now := s.now()
			patch.CompletedAt = &now
		case existing.Status == model.TaskStatusCompleted:
			patch.ClearCompletedAt = true
		}
	}

	if err := s.tasks.Move(ctx, id, patch, shift); err != nil {
		return nil, err
	}

	s.logger.Info("Task moved",
		zap.Int("task_id", id),
		zap.String("from_status", existing.Status),
		zap.String("to_status", newStatus),
		zap.Int("to_position", newPosition),
	)

	s.emitter.Emit(ctx, feed.TableTasks, feed.KindUpdate, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)

	return s.tasks.GetByID(ctx, id)
}

// Delete removes a task. The creator, project members and moderators may
// delete.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}

	existing, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !rbac.HasPermission(actor.Role, rbac.PermissionModerate) && actor.ID != existing.CreatedBy {
		project, err := s.projects.GetByID(ctx, existing.ProjectID)
		if err != nil {
			return err
		}
		if !project.CanChangeMilestoneStatus(actor.ID) {
			return apperr.Forbidden("not permitted to delete this task")
		}
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}

	s.emitter.Emit(ctx, feed.TableTasks, feed.KindDelete, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)
	return nil
}

// List returns the project's tasks ordered by position, newest-first on ties.
func (s *Service) List(ctx context.Context, actor model.Actor, projectID int) ([]model.Task, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	return s.tasks.ListByProject(ctx, projectID)
}

// Stats counts tasks per column, cached like the milestone timeline.
func (s *Service) Stats(ctx context.Context, actor model.Actor, projectID int) (*model.TaskStats, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	if s.cache != nil {
		var cached model.TaskStats
		if s.cache.Get(ctx, taskStatsCacheKey(projectID), &cached) {
			metrics.IncrementStatsCacheLookup("tasks", "hit")
			return &cached, nil
		}
		metrics.IncrementStatsCacheLookup("tasks", "miss")
	}

	stats, err := s.tasks.CountByStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, taskStatsCacheKey(projectID), stats)
	}
	return stats, nil
}

func (s *Service) AddComment(ctx context.Context, actor model.Actor, taskID int, content string) (*model.TaskComment, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	if content == "" {
		return nil, apperr.Validation("comment content is required")
	}

	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		return nil, err
	}

	c := &model.TaskComment{
		TaskID:    taskID,
		Content:   content,
		CreatedBy: actor.ID,
	}
	id, err := s.comments.Insert(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// ListComments returns the thread oldest-first.
func (s *Service) ListComments(ctx context.Context, actor model.Actor, taskID int) ([]model.TaskComment, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	return s.comments.ListByTask(ctx, taskID)
}

func (s *Service) invalidateStats(ctx context.Context, projectID int) {
	if s.cache != nil {
		s.cache.Delete(ctx, taskStatsCacheKey(projectID))
	}
}

package milestone

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"projecthub/contracts/feed"
	"projecthub/internal/apperr"
	feedemit "projecthub/internal/feed"
	"projecthub/internal/model"
	"projecthub/pkg/rbac"
)

// MilestoneStore is the slice of the repository the service needs.
type MilestoneStore interface {
	Insert(ctx context.Context, m *model.Milestone) (int, error)
	GetByID(ctx context.Context, id int) (*model.Milestone, error)
	ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error)
	MaxPosition(ctx context.Context, projectID int) (int, error)
	Update(ctx context.Context, id int, patch model.MilestonePatch) error
	Delete(ctx context.Context, id int) error
}

type ActivityStore interface {
	Insert(ctx context.Context, a *model.MilestoneActivity) (int, error)
	ListByMilestone(ctx context.Context, milestoneID int) ([]model.MilestoneActivity, error)
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

// Service owns the milestone lifecycle: status transitions, the
// progress/completion invariants, the derived-overdue read rule and the
// audit trail. It holds no state of its own; every operation is one or more
// round-trips against the stores.
type Service struct {
	milestones MilestoneStore
	activities ActivityStore
	projects   ProjectStore
	emitter    *feedemit.Emitter
	cache      StatsCache
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(
	milestones MilestoneStore,
	activities ActivityStore,
	projects ProjectStore,
	emitter *feedemit.Emitter,
	cache StatsCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		milestones: milestones,
		activities: activities,
		projects:   projects,
		emitter:    emitter,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// normalizeAssignee applies the "unassigned" sentinel rule and turns a bad
// token into a validation error.
func normalizeAssignee(raw string) (*int, error) {
	id, ok := model.NormalizeAssignee(raw)
	if !ok {
		return nil, apperr.Validation("assignee must be a user id or \"unassigned\"")
	}
	return id, nil
}

type CreateInput struct {
	ProjectID   int
	Title       string
	Description string
	DueDate     time.Time
	Assignee    string // raw token, normalized here
}

func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Milestone, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.DueDate.IsZero() {
		return nil, apperr.Validation("due date is required")
	}

	assignedTo, err := normalizeAssignee(in.Assignee)
	if err != nil {
		return nil, err
	}

	if _, err := s.projects.GetByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	maxPos, err := s.milestones.MaxPosition(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}

	m := &model.Milestone{
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      model.MilestoneStatusPending,
		Progress:    0,
		AssignedTo:  assignedTo,
		CreatedBy:   actor.ID,
		Position:    maxPos + 1,
	}

	id, err := s.milestones.Insert(ctx, m)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor, id, model.ActivityCreated, "milestone created", nil)
	s.emitter.Emit(ctx, feed.TableMilestones, feed.KindInsert, id, in.ProjectID)
	s.invalidateStats(ctx, in.ProjectID)

	created, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	created.ApplyDerivedStatus(s.now())
	return created, nil
}

type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Assignee    *string // nil leaves unchanged; "" or "unassigned" clears
	Status      *string
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id int, in UpdateInput) (*model.Milestone, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	existing, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := model.MilestonePatch{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
	}
	if in.Title != nil && *in.Title == "" {
		return nil, apperr.Validation("title cannot be empty")
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

	// Status changes inside a generic update go through the same
	// authorization and side effects as UpdateStatus.
	var statusActivity *model.MilestoneActivity
	if in.Status != nil && *in.Status != existing.Status {
		statusPatch, activity, err := s.statusTransition(ctx, actor, existing, *in.Status)
		if err != nil {
			return nil, err
		}
		patch.Status = statusPatch.Status
		patch.Progress = statusPatch.Progress
		patch.CompletedAt = statusPatch.CompletedAt
		patch.ClearCompletedAt = statusPatch.ClearCompletedAt
		statusActivity = activity
	}

	if err := s.milestones.Update(ctx, id, patch); err != nil {
		return nil, err
	}

	if statusActivity != nil {
		s.recordActivity(ctx, actor, id, statusActivity.ActivityType, statusActivity.Description, statusActivity.Metadata)
	}

	s.emitter.Emit(ctx, feed.TableMilestones, feed.KindUpdate, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)

	updated, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.ApplyDerivedStatus(s.now())
	return updated, nil
}

// UpdateProgress writes a new progress value. Reaching 100 does not flip the
// status by itself; completion is a separate explicit transition. It does
// record a "completion" activity so the trail shows when work hit 100%.
func (s *Service) UpdateProgress(ctx context.Context, actor model.Actor, id, progress int) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}
	if progress < 0 || progress > 100 {
		return apperr.Validation("progress must be between 0 and 100")
	}

	existing, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.milestones.Update(ctx, id, model.MilestonePatch{Progress: &progress}); err != nil {
		return err
	}

	activityType := model.ActivityProgressUpdate
	description := fmt.Sprintf("progress updated from %d%% to %d%%", existing.Progress, progress)
	if progress == 100 {
		activityType = model.ActivityCompletion
		description = "progress reached 100%"
	}
	s.recordActivity(ctx, actor, id, activityType, description, map[string]string{
		"old_progress": strconv.Itoa(existing.Progress),
		"new_progress": strconv.Itoa(progress),
	})

	s.emitter.Emit(ctx, feed.TableMilestones, feed.KindUpdate, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)
	return nil
}

// UpdateStatus transitions a milestone. Only the project initiator or the
// assigned mentor may do this; everyone else gets Forbidden regardless of the
// requested value.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, id int, newStatus string) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}

	existing, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return err
	}

	patch, activity, err := s.statusTransition(ctx, actor, existing, newStatus)
	if err != nil {
		return err
	}

	if err := s.milestones.Update(ctx, id, patch); err != nil {
		return err
	}

	s.recordActivity(ctx, actor, id, activity.ActivityType, activity.Description, activity.Metadata)
	s.emitter.Emit(ctx, feed.TableMilestones, feed.KindUpdate, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)
	return nil
}

// statusTransition validates and authorizes a status change and returns the
// patch plus the audit entry to append. It never writes.
func (s *Service) statusTransition(ctx context.Context, actor model.Actor, existing *model.Milestone, newStatus string) (model.MilestonePatch, *model.MilestoneActivity, error) {
	if !model.ValidMilestoneStatus(newStatus) {
		return model.MilestonePatch{}, nil, apperr.Validation("unknown milestone status " + newStatus)
	}

	project, err := s.projects.GetByID(ctx, existing.ProjectID)
	if err != nil {
		return model.MilestonePatch{}, nil, err
	}
	if !project.CanChangeMilestoneStatus(actor.ID) {
		return model.MilestonePatch{}, nil, apperr.Forbidden("only the project initiator or mentor can change milestone status")
	}

	patch := model.MilestonePatch{Status: &newStatus}
	switch {
	case newStatus == model.MilestoneStatusCompleted:
		now := s.now()
		hundred := 100
		patch.CompletedAt = &now
		patch.Progress = &hundred
	case existing.Status == model.MilestoneStatusCompleted:
		// Leaving completed clears the completion timestamp.
		patch.ClearCompletedAt = true
	case newStatus == model.MilestoneStatusPending:
		patch.ClearCompletedAt = true
	}

	activity := &model.MilestoneActivity{
		ActivityType: model.ActivityStatusChange,
		Description:  fmt.Sprintf("status changed from %s to %s", existing.Status, newStatus),
		Metadata: map[string]string{
			"old_status": existing.Status,
			"new_status": newStatus,
		},
	}
	return patch, activity, nil
}

// Delete removes a milestone. The creator, the project initiator, the mentor
// and platform moderators may delete; activities cascade with the row.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}

	existing, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !rbac.HasPermission(actor.Role, rbac.PermissionModerate) && actor.ID != existing.CreatedBy {
		project, err := s.projects.GetByID(ctx, existing.ProjectID)
		if err != nil {
			return err
		}
		if !project.CanChangeMilestoneStatus(actor.ID) {
			return apperr.Forbidden("not permitted to delete this milestone")
		}
	}

	if err := s.milestones.Delete(ctx, id); err != nil {
		return err
	}

	s.emitter.Emit(ctx, feed.TableMilestones, feed.KindDelete, id, existing.ProjectID)
	s.invalidateStats(ctx, existing.ProjectID)
	return nil
}

// List returns the project's milestones ordered by due date ascending, with
// the derived-overdue rule applied against the wall clock at read time. The
// same milestone can flip to overdue between two calls without any write.
func (s *Service) List(ctx context.Context, actor model.Actor, projectID int) ([]model.Milestone, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range milestones {
		milestones[i].ApplyDerivedStatus(now)
	}
	return milestones, nil
}

// AddActivity appends one audit entry directly; the free-text comment path.
func (s *Service) AddActivity(ctx context.Context, actor model.Actor, milestoneID int, activityType, description string, metadata map[string]string) error {
	if actor.ID == 0 {
		return apperr.ErrUnauthorized
	}
	if description == "" {
		return apperr.Validation("description is required")
	}

	if _, err := s.milestones.GetByID(ctx, milestoneID); err != nil {
		return err
	}

	_, err := s.activities.Insert(ctx, &model.MilestoneActivity{
		MilestoneID:  milestoneID,
		ActivityType: activityType,
		Description:  description,
		Metadata:     metadata,
		CreatedBy:    actor.ID,
	})
	return err
}

func (s *Service) ListActivities(ctx context.Context, actor model.Actor, milestoneID int) ([]model.MilestoneActivity, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	if _, err := s.milestones.GetByID(ctx, milestoneID); err != nil {
		return nil, err
	}
	return s.activities.ListByMilestone(ctx, milestoneID)
}

// recordActivity appends an audit entry, best-effort. A failed activity write
// never rolls back the mutation it describes; the trail may have gaps.
func (s *Service) recordActivity(ctx context.Context, actor model.Actor, milestoneID int, activityType, description string, metadata map[string]string) {
	_, err := s.activities.Insert(ctx, &model.MilestoneActivity{
		MilestoneID:  milestoneID,
		ActivityType: activityType,
		Description:  description,
		Metadata:     metadata,
		CreatedBy:    actor.ID,
	})
	if err != nil {
		s.logger.Warn("Activity write failed, audit trail will have a gap",
			zap.Int("milestone_id", milestoneID),
			zap.String("activity_type", activityType),
			zap.Error(err),
		)
	}
}

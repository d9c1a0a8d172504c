package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{db: db, logger: logger}
}

// milestoneColumns is the joined select shared by GetByID and ListByProject.
// Assignee and creator are LEFT JOINs: the assignee row may be gone even when
// assigned_to is still set.
const milestoneColumns = `
        m.id, m.project_id, m.title, m.description, m.due_date, m.status,
        m.progress, m.assigned_to, m.created_by, m.completed_at, m.position,
        m.created_at, m.updated_at,
        a.id, a.display_name, a.avatar_url,
        c.id, c.display_name, c.avatar_url
`

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	var aID, cID *int
	var aName, aAvatar, cName, cAvatar *string

	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.Description,
		&m.DueDate,
		&m.Status,
		&m.Progress,
		&m.AssignedTo,
		&m.CreatedBy,
		&m.CompletedAt,
		&m.Position,
		&m.CreatedAt,
		&m.UpdatedAt,
		&aID, &aName, &aAvatar,
		&cID, &cName, &cAvatar,
	)
	if err != nil {
		return nil, err
	}

	if aID != nil {
		m.Assignee = &model.UserSummary{ID: *aID, DisplayName: deref(aName), AvatarURL: deref(aAvatar)}
	}
	if cID != nil {
		m.Creator = &model.UserSummary{ID: *cID, DisplayName: deref(cName), AvatarURL: deref(cAvatar)}
	}
	return &m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) (int, error) {
	r.logger.Debug("Inserting milestone",
		zap.Int("project_id", m.ProjectID),
		zap.String("title", m.Title),
		zap.Int("position", m.Position),
	)

	query := `
        INSERT INTO milestones (project_id, title, description, due_date, status, progress, assigned_to, created_by, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		m.ProjectID,
		m.Title,
		m.Description,
		m.DueDate,
		m.Status,
		m.Progress,
		m.AssignedTo,
		m.CreatedBy,
		m.Position,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return 0, apperr.Dependency("insert milestone", err)
	}

	r.logger.Info("Milestone inserted successfully",
		zap.Int("milestone_id", id),
		zap.Int("project_id", m.ProjectID),
	)
	return id, nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id int) (*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones m
        LEFT JOIN users a ON a.id = m.assigned_to
        LEFT JOIN users c ON c.id = m.created_by
        WHERE m.id = $1
    `
	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("milestone", id)
		}
		r.logger.Error("Failed to get milestone", zap.Error(err), zap.Int("milestone_id", id))
		return nil, apperr.Dependency("get milestone", err)
	}
	return m, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones m
        LEFT JOIN users a ON a.id = m.assigned_to
        LEFT JOIN users c ON c.id = m.created_by
        WHERE m.project_id = $1
        ORDER BY m.due_date ASC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Error(err), zap.Int("project_id", projectID))
		return nil, apperr.Dependency("list milestones", err)
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone row", zap.Error(err))
			return nil, apperr.Dependency("scan milestone", err)
		}
		milestones = append(milestones, *m)
	}
	return milestones, nil
}

// MaxPosition returns the highest position in the project, 0 when empty.
func (r *MilestoneRepository) MaxPosition(ctx context.Context, projectID int) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM milestones WHERE project_id = $1`,
		projectID,
	).Scan(&max)
	if err != nil {
		r.logger.Error("Failed to read max position", zap.Error(err), zap.Int("project_id", projectID))
		return 0, apperr.Dependency("max position", err)
	}
	return max, nil
}

func (r *MilestoneRepository) Update(ctx context.Context, id int, patch model.MilestonePatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.ClearAssignee {
		sets = append(sets, "assigned_to = NULL")
	} else if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
	}
	if patch.ClearCompletedAt {
		sets = append(sets, "completed_at = NULL")
	} else if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.Position != nil {
		add("position", *patch.Position)
	}

	query := fmt.Sprintf(`UPDATE milestones SET %s WHERE id = $1`, strings.Join(sets, ", "))

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update milestone", zap.Error(err), zap.Int("milestone_id", id))
		return apperr.Dependency("update milestone", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("milestone", id)
	}

	r.logger.Info("Milestone updated", zap.Int("milestone_id", id))
	return nil
}

// Delete removes the milestone; its activities cascade.
func (r *MilestoneRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete milestone", zap.Error(err), zap.Int("milestone_id", id))
		return apperr.Dependency("delete milestone", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("milestone", id)
	}

	r.logger.Info("Milestone deleted", zap.Int("milestone_id", id))
	return nil
}

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

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
        t.id, t.project_id, t.title, t.description, t.status, t.priority,
        t.assigned_to, t.created_by, t.due_date, t.completed_at, t.position,
        t.created_at, t.updated_at,
        a.id, a.display_name, a.avatar_url,
        c.id, c.display_name, c.avatar_url
`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var aID, cID *int
	var aName, aAvatar, cName, cAvatar *string

	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.AssignedTo,
		&t.CreatedBy,
		&t.DueDate,
		&t.CompletedAt,
		&t.Position,
		&t.CreatedAt,
		&t.UpdatedAt,
		&aID, &aName, &aAvatar,
		&cID, &cName, &cAvatar,
	)
	if err != nil {
		return nil, err
	}

	if aID != nil {
		t.Assignee = &model.UserSummary{ID: *aID, DisplayName: deref(aName), AvatarURL: deref(aAvatar)}
	}
	if cID != nil {
		t.Creator = &model.UserSummary{ID: *cID, DisplayName: deref(cName), AvatarURL: deref(cAvatar)}
	}
	return &t, nil
}

func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) (int, error) {
	r.logger.Debug("Inserting task",
		zap.Int("project_id", t.ProjectID),
		zap.String("title", t.Title),
		zap.String("status", t.Status),
		zap.Int("position", t.Position),
	)

	query := `
        INSERT INTO tasks (project_id, title, description, status, priority, assigned_to, created_by, due_date, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		t.ProjectID,
		t.Title,
		t.Description,
		t.Status,
		t.Priority,
		t.AssignedTo,
		t.CreatedBy,
		t.DueDate,
		t.Position,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert task", zap.Error(err))
		return 0, apperr.Dependency("insert task", err)
	}

	r.logger.Info("Task inserted successfully",
		zap.Int("task_id", id),
		zap.Int("project_id", t.ProjectID),
	)
	return id, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int) (*model.Task, error) {
	query := `
        SELECT ` + taskColumns + `
        FROM tasks t
        LEFT JOIN users a ON a.id = t.assigned_to
        LEFT JOIN users c ON c.id = t.created_by
        WHERE t.id = $1
    `
	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task", id)
		}
		r.logger.Error("Failed to get task", zap.Error(err), zap.Int("task_id", id))
		return nil, apperr.Dependency("get task", err)
	}
	return t, nil
}

// ListByProject orders by position ascending, newest creation first on ties.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID int) ([]model.Task, error) {
	query := `
        SELECT ` + taskColumns + `
        FROM tasks t
        LEFT JOIN users a ON a.id = t.assigned_to
        LEFT JOIN users c ON c.id = t.created_by
        WHERE t.project_id = $1
        ORDER BY t.position ASC, t.created_at DESC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.Error(err), zap.Int("project_id", projectID))
		return nil, apperr.Dependency("list tasks", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, apperr.Dependency("scan task", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// MaxPositionForStatus returns the highest position within one project+status
// column, 0 when the column is empty.
func (r *TaskRepository) MaxPositionForStatus(ctx context.Context, projectID int, status string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM tasks WHERE project_id = $1 AND status = $2`,
		projectID, status,
	).Scan(&max)
	if err != nil {
		r.logger.Error("Failed to read max task position",
			zap.Error(err),
			zap.Int("project_id", projectID),
			zap.String("status", status),
		)
		return 0, apperr.Dependency("max task position", err)
	}
	return max, nil
}

// taskUpdateQuery builds the dynamic UPDATE for a patch. args[0] is the task
// id so the WHERE clause can always use $1.
func taskUpdateQuery(id int, patch model.TaskPatch) (string, []any) {
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
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.ClearAssignee {
		sets = append(sets, "assigned_to = NULL")
	} else if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.ClearCompletedAt {
		sets = append(sets, "completed_at = NULL")
	} else if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.Position != nil {
		add("position", *patch.Position)
	}

	return fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $1`, strings.Join(sets, ", ")), args
}

// Move writes a task's new column and position. When shift is non-nil the
// tasks already at position >= shift.FromPosition in the destination column
// are bumped up by one first. Both statements run in one transaction so a
// concurrent reader never sees a half-applied reorder.
func (r *TaskRepository) Move(ctx context.Context, id int, patch model.TaskPatch, shift *model.PositionShift) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err), zap.Int("task_id", id))
		return apperr.Dependency("begin move", err)
	}
	defer tx.Rollback(ctx)

	if shift != nil {
		shiftQuery := `
            UPDATE tasks
            SET position = position + 1, updated_at = NOW()
            WHERE project_id = $1 AND status = $2 AND position >= $3
        `
		shifted, err := tx.Exec(ctx, shiftQuery, shift.ProjectID, shift.Status, shift.FromPosition)
		if err != nil {
			r.logger.Error("Failed to shift task positions",
				zap.Error(err),
				zap.Int("project_id", shift.ProjectID),
				zap.String("status", shift.Status),
				zap.Int("from_position", shift.FromPosition),
			)
			return apperr.Dependency("shift positions", err)
		}
		r.logger.Debug("Task positions shifted",
			zap.Int("project_id", shift.ProjectID),
			zap.String("status", shift.Status),
			zap.Int("from_position", shift.FromPosition),
			zap.Int64("rows_affected", shifted.RowsAffected()),
		)
	}

	query, args := taskUpdateQuery(id, patch)
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to move task", zap.Error(err), zap.Int("task_id", id))
		return apperr.Dependency("move task", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("task", id)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err), zap.Int("task_id", id))
		return apperr.Dependency("commit move", err)
	}

	r.logger.Info("Task moved", zap.Int("task_id", id))
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, id int, patch model.TaskPatch) error {
	query, args := taskUpdateQuery(id, patch)

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update task", zap.Error(err), zap.Int("task_id", id))
		return apperr.Dependency("update task", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("task", id)
	}

	r.logger.Info("Task updated", zap.Int("task_id", id))
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete task", zap.Error(err), zap.Int("task_id", id))
		return apperr.Dependency("delete task", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("task", id)
	}

	r.logger.Info("Task deleted", zap.Int("task_id", id))
	return nil
}

// CountByStatus returns per-column counts plus the total.
func (r *TaskRepository) CountByStatus(ctx context.Context, projectID int) (*model.TaskStats, error) {
	query := `
        SELECT status, COUNT(*)
        FROM tasks
        WHERE project_id = $1
        GROUP BY status
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to count tasks", zap.Error(err), zap.Int("project_id", projectID))
		return nil, apperr.Dependency("count tasks", err)
	}
	defer rows.Close()

	stats := &model.TaskStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperr.Dependency("scan task count", err)
		}

		stats.Total += count
		switch status {
		case model.TaskStatusTodo:
			stats.Todo = count
		case model.TaskStatusInProgress:
			stats.InProgress = count
		case model.TaskStatusReview:
			stats.Review = count
		case model.TaskStatusCompleted:
			stats.Completed = count
		}
	}
	return stats, nil
}

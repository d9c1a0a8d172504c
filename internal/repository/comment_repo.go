package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

type CommentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCommentRepository(db *pgxpool.Pool, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{db: db, logger: logger}
}

func (r *CommentRepository) Insert(ctx context.Context, c *model.TaskComment) (int, error) {
	query := `
        INSERT INTO task_comments (task_id, content, created_by)
        VALUES ($1, $2, $3)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		c.TaskID,
		c.Content,
		c.CreatedBy,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert comment",
			zap.Error(err),
			zap.Int("task_id", c.TaskID),
		)
		return 0, apperr.Dependency("insert comment", err)
	}

	r.logger.Debug("Comment inserted",
		zap.Int("comment_id", id),
		zap.Int("task_id", c.TaskID),
	)
	return id, nil
}

// ListByTask returns the thread oldest-first, chronological reading order.
func (r *CommentRepository) ListByTask(ctx context.Context, taskID int) ([]model.TaskComment, error) {
	query := `
        SELECT tc.id, tc.task_id, tc.content, tc.created_by, tc.created_at,
               u.id, u.display_name, u.avatar_url
        FROM task_comments tc
        LEFT JOIN users u ON u.id = tc.created_by
        WHERE tc.task_id = $1
        ORDER BY tc.created_at ASC
    `
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to list comments", zap.Error(err), zap.Int("task_id", taskID))
		return nil, apperr.Dependency("list comments", err)
	}
	defer rows.Close()

	comments := []model.TaskComment{}
	for rows.Next() {
		var c model.TaskComment
		var uID *int
		var uName, uAvatar *string

		if err := rows.Scan(
			&c.ID,
			&c.TaskID,
			&c.Content,
			&c.CreatedBy,
			&c.CreatedAt,
			&uID, &uName, &uAvatar,
		); err != nil {
			r.logger.Error("Failed to scan comment row", zap.Error(err))
			return nil, apperr.Dependency("scan comment", err)
		}

		if uID != nil {
			c.Creator = &model.UserSummary{ID: *uID, DisplayName: deref(uName), AvatarURL: deref(uAvatar)}
		}
		comments = append(comments, c)
	}
	return comments, nil
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

func (r *ProjectRepository) Insert(ctx context.Context, p *model.Project) (int, error) {
	r.logger.Debug("Inserting project",
		zap.Int("initiator_id", p.InitiatorID),
		zap.String("title", p.Title),
	)

	query := `
        INSERT INTO projects (initiator_id, mentor_id, title, description, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		p.InitiatorID,
		p.MentorID,
		p.Title,
		p.Description,
		p.Status,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err))
		return 0, apperr.Dependency("insert project", err)
	}

	r.logger.Info("Project inserted successfully",
		zap.Int("project_id", id),
		zap.Int("initiator_id", p.InitiatorID),
	)
	return id, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int) (*model.Project, error) {
	query := `
        SELECT id, initiator_id, mentor_id, title, description, status, created_at, updated_at
        FROM projects
        WHERE id = $1
    `
	var p model.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.InitiatorID,
		&p.MentorID,
		&p.Title,
		&p.Description,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("project", id)
		}
		r.logger.Error("Failed to get project", zap.Error(err), zap.Int("project_id", id))
		return nil, apperr.Dependency("get project", err)
	}
	return &p, nil
}

func (r *ProjectRepository) ListByMember(ctx context.Context, userID int) ([]model.Project, error) {
	query := `
        SELECT id, initiator_id, mentor_id, title, description, status, created_at, updated_at
        FROM projects
        WHERE initiator_id = $1 OR mentor_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err), zap.Int("user_id", userID))
		return nil, apperr.Dependency("list projects", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(
			&p.ID,
			&p.InitiatorID,
			&p.MentorID,
			&p.Title,
			&p.Description,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to scan project row", zap.Error(err))
			return nil, apperr.Dependency("scan project", err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *ProjectRepository) AssignMentor(ctx context.Context, id, mentorID int) error {
	query := `
        UPDATE projects
        SET mentor_id = $2, updated_at = NOW()
        WHERE id = $1
    `
	result, err := r.db.Exec(ctx, query, id, mentorID)
	if err != nil {
		r.logger.Error("Failed to assign mentor",
			zap.Error(err),
			zap.Int("project_id", id),
			zap.Int("mentor_id", mentorID),
		)
		return apperr.Dependency("assign mentor", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("project", id)
	}

	r.logger.Info("Mentor assigned",
		zap.Int("project_id", id),
		zap.Int("mentor_id", mentorID),
	)
	return nil
}

// Delete removes the project. Milestones, tasks, activities and comments go
// with it via ON DELETE CASCADE.
func (r *ProjectRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.Error(err), zap.Int("project_id", id))
		return apperr.Dependency("delete project", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("project", id)
	}

	r.logger.Info("Project deleted", zap.Int("project_id", id))
	return nil
}

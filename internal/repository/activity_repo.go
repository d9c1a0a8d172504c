package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

// ActivityRepository is append-only: activities are inserted as side effects
// of milestone mutations and only ever removed by the milestone cascade.
type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

func (r *ActivityRepository) Insert(ctx context.Context, a *model.MilestoneActivity) (int, error) {
	var meta []byte
	if a.Metadata != nil {
		var err error
		meta, err = json.Marshal(a.Metadata)
		if err != nil {
			return 0, apperr.Validation("activity metadata not serializable")
		}
	}

	query := `
        INSERT INTO milestone_activities (milestone_id, activity_type, description, metadata, created_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		a.MilestoneID,
		a.ActivityType,
		a.Description,
		meta,
		a.CreatedBy,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert activity",
			zap.Error(err),
			zap.Int("milestone_id", a.MilestoneID),
			zap.String("activity_type", a.ActivityType),
		)
		return 0, apperr.Dependency("insert activity", err)
	}

	r.logger.Debug("Activity inserted",
		zap.Int("activity_id", id),
		zap.Int("milestone_id", a.MilestoneID),
		zap.String("activity_type", a.ActivityType),
	)
	return id, nil
}

// ListByMilestone returns the audit trail newest-first.
func (r *ActivityRepository) ListByMilestone(ctx context.Context, milestoneID int) ([]model.MilestoneActivity, error) {
	query := `
        SELECT act.id, act.milestone_id, act.activity_type, act.description,
               act.metadata, act.created_by, act.created_at,
               u.id, u.display_name, u.avatar_url
        FROM milestone_activities act
        LEFT JOIN users u ON u.id = act.created_by
        WHERE act.milestone_id = $1
        ORDER BY act.created_at DESC
    `
	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		r.logger.Error("Failed to list activities", zap.Error(err), zap.Int("milestone_id", milestoneID))
		return nil, apperr.Dependency("list activities", err)
	}
	defer rows.Close()

	activities := []model.MilestoneActivity{}
	for rows.Next() {
		var a model.MilestoneActivity
		var meta []byte
		var uID *int
		var uName, uAvatar *string

		if err := rows.Scan(
			&a.ID,
			&a.MilestoneID,
			&a.ActivityType,
			&a.Description,
			&meta,
			&a.CreatedBy,
			&a.CreatedAt,
			&uID, &uName, &uAvatar,
		); err != nil {
			r.logger.Error("Failed to scan activity row", zap.Error(err))
			return nil, apperr.Dependency("scan activity", err)
		}

		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				r.logger.Warn("Unreadable activity metadata, leaving empty",
					zap.Int("activity_id", a.ID),
					zap.Error(err),
				)
			}
		}
		if uID != nil {
			a.Creator = &model.UserSummary{ID: *uID, DisplayName: deref(uName), AvatarURL: deref(uAvatar)}
		}
		activities = append(activities, a)
	}
	return activities, nil
}

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

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) Insert(ctx context.Context, u *model.User) (int, error) {
	query := `
        INSERT INTO users (email, display_name, avatar_url, role, password_hash)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		u.Email,
		u.DisplayName,
		u.AvatarURL,
		u.Role,
		u.PasswordHash,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert user",
			zap.Error(err),
			zap.String("email", u.Email),
		)
		return 0, apperr.Dependency("insert user", err)
	}

	r.logger.Info("User inserted successfully",
		zap.Int("user_id", id),
		zap.String("role", u.Role),
	)
	return id, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
        SELECT id, email, display_name, avatar_url, role, password_hash, created_at
        FROM users
        WHERE email = $1
    `
	var u model.User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Role,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		r.logger.Error("Failed to find user by email", zap.Error(err))
		return nil, apperr.Dependency("find user", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int) (*model.User, error) {
	query := `
        SELECT id, email, display_name, avatar_url, role, password_hash, created_at
        FROM users
        WHERE id = $1
    `
	var u model.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Role,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user", id)
		}
		r.logger.Error("Failed to find user by id", zap.Error(err), zap.Int("user_id", id))
		return nil, apperr.Dependency("find user", err)
	}
	return &u, nil
}

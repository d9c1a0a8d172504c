package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/rbac"
	"projecthub/pkg/util"
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Insert(ctx context.Context, u *model.User) (int, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int) (*model.User, error)
}

type Service struct {
	users     UserStore
	jwtSecret string
	logger    *zap.Logger
}

func NewService(users UserStore, jwtSecret string, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Register creates a new user. New accounts default to the student role;
// mentor and admin roles are assigned out of band.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, apperr.Validation("display name is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Validation("email already registered")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         rbac.RoleStudent,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	id, err := s.users.Insert(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id

	s.logger.Info("User registered",
		zap.Int("user_id", u.ID),
		zap.String("email", u.Email),
	)
	return u, nil
}

// Login checks credentials and returns a signed token. Bad email and bad
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil, apperr.ErrUnauthorized
		}
		return "", nil, err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, apperr.ErrUnauthorized
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("User logged in", zap.Int("user_id", u.ID))
	return token, u, nil
}

// ActorFromToken resolves a bearer token to the acting user. The role comes
// from the database, not the token, so role changes take effect immediately.
func (s *Service) ActorFromToken(ctx context.Context, token string) (model.Actor, error) {
	userID, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return model.Actor{}, apperr.ErrUnauthorized
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Actor{}, apperr.ErrUnauthorized
		}
		return model.Actor{}, err
	}

	return model.Actor{ID: u.ID, Role: u.Role}, nil
}

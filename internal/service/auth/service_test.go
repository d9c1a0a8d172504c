package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/rbac"
)

type fakeUserStore struct {
	mu     sync.Mutex
	nextID int
	users  map[int]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		nextID: 1,
		users:  make(map[int]model.User),
	}
}

func (s *fakeUserStore) Insert(_ context.Context, u *model.User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := *u
	stored.ID = id
	stored.CreatedAt = time.Now()
	s.users[id] = stored
	return id, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, apperr.NotFound("user", 0)
}

func (s *fakeUserStore) FindByID(_ context.Context, id int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	out := u
	return &out, nil
}

func (s *fakeUserStore) setRole(id int, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.Role = role
	s.users[id] = u
}

func newTestService() (*fakeUserStore, *Service) {
	store := newFakeUserStore()
	return store, NewService(store, "test-secret", zap.NewNop())
}

func TestRegister_DefaultsToStudent(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()

	u, err := svc.Register(context.Background(), "Ada@Example.Com", "correct-horse", "Ada")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if u.Role != rbac.RoleStudent {
		t.Fatalf("expected student role, got %s", u.Role)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	if u.PasswordHash == "correct-horse" || u.PasswordHash == "" {
		t.Fatalf("password stored without hashing")
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "long-enough-pw", "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad email: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "short", "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("short password: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "long-enough-pw", "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank name: expected ErrValidation, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.com", "long-enough-pw", "first"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Register(ctx, "A@B.com", "long-enough-pw", "second"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate email, got %v", err)
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "long-enough-pw", "Ada")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	token, u, err := svc.Login(ctx, "a@b.com", "long-enough-pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token == "" || u.ID != registered.ID {
		t.Fatalf("unexpected login result token=%q user=%+v", token, u)
	}

	actor, err := svc.ActorFromToken(ctx, token)
	if err != nil {
		t.Fatalf("ActorFromToken returned error: %v", err)
	}
	if actor.ID != registered.ID || actor.Role != rbac.RoleStudent {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.com", "long-enough-pw", "Ada"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	_, _, wrongPassword := svc.Login(ctx, "a@b.com", "nope-nope-nope")
	_, _, unknownEmail := svc.Login(ctx, "ghost@b.com", "long-enough-pw")

	if !errors.Is(wrongPassword, apperr.ErrUnauthorized) {
		t.Fatalf("wrong password: expected ErrUnauthorized, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, apperr.ErrUnauthorized) {
		t.Fatalf("unknown email: expected ErrUnauthorized, got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("credential errors leak which part failed: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestActorFromToken_RoleFromDatabase(t *testing.T) {
	t.Parallel()

	store, svc := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "a@b.com", "long-enough-pw", "Ada")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	token, _, err := svc.Login(ctx, "a@b.com", "long-enough-pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// A role change after the token was issued takes effect immediately.
	store.setRole(u.ID, rbac.RoleMentor)

	actor, err := svc.ActorFromToken(ctx, token)
	if err != nil {
		t.Fatalf("ActorFromToken returned error: %v", err)
	}
	if actor.Role != rbac.RoleMentor {
		t.Fatalf("expected mentor, got %s", actor.Role)
	}
}

func TestActorFromToken_GarbageToken(t *testing.T) {
	t.Parallel()

	_, svc := newTestService()

	if _, err := svc.ActorFromToken(context.Background(), "not.a.token"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

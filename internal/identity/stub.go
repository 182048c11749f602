package identity

import (
	"context"
	"strings"

	"agent_catalog/internal/domain"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Provider authenticates a caller.
type Provider interface {
	Login(ctx context.Context, creds Credentials) (domain.User, error)
	Register(ctx context.Context, creds Credentials) (domain.User, error)
}

// Stub accepts any credentials and grants the configured role. It is not a
// trust boundary; nothing in the service gates on the returned user.
type Stub struct {
	role domain.UserRole
}

func NewStub(role domain.UserRole) *Stub {
	if role == "" {
		role = domain.UserRoleAdmin
	}
	return &Stub{role: role}
}

func (s *Stub) Login(_ context.Context, creds Credentials) (domain.User, error) {
	return domain.User{Email: strings.TrimSpace(creds.Email), Role: s.role}, nil
}

// Register behaves exactly like Login; no account is stored.
func (s *Stub) Register(ctx context.Context, creds Credentials) (domain.User, error) {
	return s.Login(ctx, creds)
}

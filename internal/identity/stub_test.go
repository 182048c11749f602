package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/domain"
)

func TestStubAcceptsAnyCredentials(t *testing.T) {
	stub := NewStub("")

	user, err := stub.Login(context.Background(), Credentials{Email: " ops@example.com ", Password: "wrong"})
	require.NoError(t, err)
	assert.Equal(t, domain.User{Email: "ops@example.com", Role: domain.UserRoleAdmin}, user)

	user, err = stub.Register(context.Background(), Credentials{Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, user.Role)
}

func TestStubConfiguredRole(t *testing.T) {
	user, err := NewStub(domain.UserRoleViewer).Login(context.Background(), Credentials{Email: "v@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleViewer, user.Role)
}

func TestStubAcceptsEmptyCredentials(t *testing.T) {
	user, err := NewStub("").Login(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, user.Role)
}

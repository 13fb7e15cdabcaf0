package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/repo"
)

func TestOperatorService(t *testing.T) {
	svc := NewOperatorService(repo.NewOperatorRepository(openTestDB(t)))

	require.NoError(t, svc.EnsureAdmin("root", "pw"))
	// second call keeps the existing account and its password
	require.NoError(t, svc.EnsureAdmin("root", "other"))

	o, err := svc.Authenticate("root", "pw")
	require.NoError(t, err)
	assert.Equal(t, jwtutil.RoleAdmin, o.Role)
	assert.NotEqual(t, "pw", o.PasswordHash)

	_, err = svc.Authenticate("root", "other")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate("ghost", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Create("eve", "pw", ""))
	assert.ErrorIs(t, svc.Create("eve", "pw", ""), ErrOperatorExists)
	assert.Error(t, svc.Create("", "pw", ""))

	ops, err := svc.List()
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "eve", ops[0].Username)
	assert.Equal(t, RoleViewer, ops[0].Role)
}

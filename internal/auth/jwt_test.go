package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/auth"
	"edutrack/internal/model"
)

const testKey = "unit-test-signing-key"

func TestIssueAndParse(t *testing.T) {
	pair, err := auth.Issue("student-1", model.RoleStudent, "edutrack", testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := auth.Parse(pair.AccessToken, testKey, "edutrack")
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.Subject)
	assert.Equal(t, model.RoleStudent, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := auth.Issue("student-1", model.RoleStudent, "edutrack", testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, "some-other-key", "edutrack")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := auth.Issue("student-1", model.RoleStudent, "someone-else", testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, testKey, "edutrack")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := auth.Issue("student-1", model.RoleStudent, "edutrack", testKey, -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, testKey, "edutrack")
	assert.Error(t, err)
}

package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1, Plan: "free"}

	raw, err := us.IssueAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "pfx_"))
	assert.Equal(t, HashAPIKey(raw), us.APIKeyHash)
	assert.Equal(t, raw[:16], us.APIKeyPrefix)
	assert.NotNil(t, us.APIKeyCreatedAt)
	assert.Nil(t, us.APIKeyRevokedAt)
	assert.True(t, us.HasActiveAPIKey())
}

func TestIssueAPIKeyUnique(t *testing.T) {
	us := &UserSettings{UserID: 1}

	first, err := us.IssueAPIKey()
	require.NoError(t, err)
	second, err := us.IssueAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, HashAPIKey(second), us.APIKeyHash)
}

func TestRevokeAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1}
	_, err := us.IssueAPIKey()
	require.NoError(t, err)

	us.RevokeAPIKey()

	assert.Empty(t, us.APIKeyHash)
	assert.Empty(t, us.APIKeyPrefix)
	assert.NotNil(t, us.APIKeyRevokedAt)
	assert.False(t, us.HasActiveAPIKey())
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, HashAPIKey("pfx_abc"), HashAPIKey("  pfx_abc  "))
	assert.NotEqual(t, HashAPIKey("pfx_abc"), HashAPIKey("pfx_abd"))
	assert.Len(t, HashAPIKey("pfx_abc"), 64)
}

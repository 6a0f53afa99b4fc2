package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	user, err := CreateUser("testuser", "test@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, "testuser", user.Name)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, ROLE_USER, user.Role)
	assert.Equal(t, STATUS_ACTIVE, user.Status)
	assert.NotEqual(t, "secret123", user.Password)
	assert.True(t, CheckPasswordHash("secret123", user.Password))
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short name", "ab", "test@example.com", "secret123"},
		{"invalid email", "testuser", "not-an-email", "secret123"},
		{"short password", "testuser", "test@example.com", "abc"},
		{"empty email", "testuser", "", "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateUser(tt.username, tt.email, tt.password)
			assert.Error(t, err)
		})
	}
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("correct horse", hash))
	assert.False(t, CheckPasswordHash("wrong horse", hash))
	assert.False(t, CheckPasswordHash("correct horse", "not-a-hash"))
}

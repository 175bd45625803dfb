package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_PendingPassword(t *testing.T) {
	u := &User{}
	_, ok := u.PendingPassword()
	assert.False(t, ok)

	u.SetPassword("secret123")
	plain, ok := u.PendingPassword()
	require.True(t, ok)
	assert.Equal(t, "secret123", plain)

	u.ApplyPasswordHash("$2a$10$hash")
	_, ok = u.PendingPassword()
	assert.False(t, ok)
	assert.True(t, u.HasPassword())
}

func TestUser_PublicHasNoPassword(t *testing.T) {
	u := &User{ID: "1", Email: "a@x.com", PasswordHash: "$2a$10$hash"}
	u.SetPassword("secret123")

	b, err := json.Marshal(u.Public())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "password")
	assert.NotContains(t, m, "passwordHash")
	assert.NotContains(t, string(b), "secret123")
	assert.NotContains(t, string(b), "$2a$10$hash")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}

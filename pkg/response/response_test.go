package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubErr struct{}

func (stubErr) Error() string { return "conflict: dup" }
func (stubErr) Status() int { return http.StatusConflict }
func (stubErr) Code() string { return "conflict" }
func (stubErr) PublicMessage() string { return "User already exists" }
func (stubErr) Details() map[string]string { return map[string]string{"email": "taken"} }

func TestSuccess_DefaultStatus(t *testing.T) {
	env := Success[any](0, nil, "ok")
	assert.Equal(t, http.StatusOK, env.Status)
}

func TestFromError(t *testing.T) {
	env := FromError(stubErr{})
	assert.Equal(t, http.StatusConflict, env.Status)
	assert.Equal(t, "conflict", env.Error)
	assert.Equal(t, "User already exists", env.Message)
	assert.Equal(t, map[string]string{"email": "taken"}, env.Details)
}

func TestFromError_Unknown(t *testing.T) {
	env := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, env.Status)
	assert.NotContains(t, env.Message, "boom")
}

func TestEnvelope_WireShape(t *testing.T) {
	b, err := json.Marshal(Success[any](http.StatusCreated, nil, "created"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, float64(201), m["status"])
	assert.Equal(t, "created", m["message"])
	assert.NotContains(t, m, "data")
	assert.NotContains(t, m, "error")
}

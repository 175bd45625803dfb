package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform result of every auth operation.
type Envelope[T any] struct {
	Status  int    `json:"status"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// StatusError is implemented by errors that know their HTTP-equivalent status.
type StatusError interface {
	error
	Status() int
	Code() string
	PublicMessage() string
}

// DetailedError optionally exposes per-field details (validation failures).
type DetailedError interface {
	Details() map[string]string
}

func Success[T any](status int, data T, message string) Envelope[T] {
	if status == 0 {
		status = http.StatusOK
	}
	return Envelope[T]{Status: status, Data: data, Message: message}
}

// FromError renders err as an envelope. Errors that do not implement StatusError become 500s.
func FromError(err error) Envelope[any] {
	var se StatusError
	if !errors.As(err, &se) {
		return Envelope[any]{Status: http.StatusInternalServerError, Error: "internal", Message: "internal error"}
	}
	env := Envelope[any]{Status: se.Status(), Error: se.Code(), Message: se.PublicMessage()}
	var de DetailedError
	if errors.As(err, &de) {
		if d := de.Details(); len(d) > 0 {
			env.Details = d
		}
	}
	return env
}

// JSON writes env with its own status code.
func JSON[T any](c *gin.Context, env Envelope[T]) {
	c.JSON(env.Status, env)
}

// Abort writes the error envelope for err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	env := FromError(err)
	c.AbortWithStatusJSON(env.Status, env)
}

// Fail aborts with an error envelope built from status, code and message.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope[any]{Status: status, Error: code, Message: message})
}

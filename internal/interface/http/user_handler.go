package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/authcore/internal/application"
)

type UserHandler struct {
	Svc *application.AuthService
}

func NewUserHandler(svc *application.AuthService) *UserHandler {
	return &UserHandler{Svc: svc}
}

// Search GET /api/users/search?q=&size=
func (h *UserHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	env, err := h.Svc.SearchUsers(c.Request.Context(), c.Query("q"), size)
	reply(c, env, err)
}

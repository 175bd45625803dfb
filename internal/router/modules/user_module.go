package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/authcore/internal/interface/http"
	"github.com/oksasatya/authcore/internal/interface/middleware"
	"github.com/oksasatya/authcore/pkg/helpers"
)

// UserModule wires user lookups behind JWT auth.
// Protected: GET /api/users/search
type UserModule struct {
	Handler *handlers.UserHandler
	JWT     *helpers.JWTManager
	RDB     redis.Cmdable
}

func NewUserModule(h *handlers.UserHandler, jwt *helpers.JWTManager, rdb redis.Cmdable) *UserModule {
	return &UserModule{Handler: h, JWT: jwt, RDB: rdb}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	users.Use(middleware.JWTAuth(m.JWT))
	users.Use(
		middleware.RateLimit(m.RDB, 300, time.Minute, middleware.KeyByIP(), nil),
		middleware.RateLimit(m.RDB, 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		users.GET("/search", m.Handler.Search)
	}
}

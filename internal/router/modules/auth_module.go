package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/authcore/internal/interface/http"
	"github.com/oksasatya/authcore/internal/interface/middleware"
	"github.com/oksasatya/authcore/pkg/helpers"
)

type AuthModule struct {
	Handler *handlers.AuthHandler
	JWT     *helpers.JWTManager
	RDB     redis.Cmdable
}

func NewAuthModule(h *handlers.AuthHandler, jwt *helpers.JWTManager, rdb redis.Cmdable) *AuthModule {
	return &AuthModule{Handler: h, JWT: jwt, RDB: rdb}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	// Public endpoints with IP-based rate limits
	registerLimiter := middleware.RateLimit(m.RDB, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	loginLimiter := middleware.RateLimit(m.RDB, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := middleware.RateLimit(m.RDB, 60, time.Minute, middleware.KeyByIPAndPath(), nil)
	verifyConfirmLimiter := middleware.RateLimit(m.RDB, 30, time.Minute, middleware.KeyByIPAndPath(), nil)
	probeLimiter := middleware.RateLimit(m.RDB, 60, time.Minute, middleware.KeyByIP(), nil)

	auth := rg.Group("/auth")
	auth.POST("/register", registerLimiter, m.Handler.Register)
	auth.POST("/login", loginLimiter, m.Handler.Login)
	auth.POST("/google", loginLimiter, m.Handler.Google)
	auth.POST("/refresh", refreshLimiter, m.Handler.Refresh)
	auth.POST("/verify/confirm", verifyConfirmLimiter, m.Handler.ConfirmEmail)
	auth.GET("/email-exists", probeLimiter, m.Handler.EmailExists)
	auth.GET("/username-exists", probeLimiter, m.Handler.UsernameExists)
	auth.POST("/logout", m.Handler.Logout)

	// Protected with user-based rate limit
	protected := auth.Group("/")
	protected.Use(middleware.JWTAuth(m.JWT))
	protected.Use(middleware.RateLimit(m.RDB, 5, time.Minute, middleware.KeyByUserID(), nil))
	{
		protected.PUT("/password", m.Handler.ChangePassword)
	}
}

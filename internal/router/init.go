package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/authcore/internal/container"
	handlers "github.com/oksasatya/authcore/internal/interface/http"
	"github.com/oksasatya/authcore/internal/router/modules"
)

// InitModules builds the handlers from c and registers their modules.
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry, c *container.Container) {
	authHandler := handlers.NewAuthHandler(c.Auth, c.Logger, c.Config.CookieDomain, c.Config.CookieSecure)
	userHandler := handlers.NewUserHandler(c.Auth)

	r.Add(ModuleFunc(func(rg *gin.RouterGroup) {
		rg.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	}))
	r.Add(modules.NewAuthModule(authHandler, c.JWT, c.Limiter()))
	r.Add(modules.NewUserModule(userHandler, c.JWT, c.Limiter()))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(c.Limiter()))
	}
}

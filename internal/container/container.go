package container

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/config"
	"github.com/oksasatya/authcore/internal/application"
	"github.com/oksasatya/authcore/pkg/helpers"
)

// Container carries the process-wide components built once in main.
// Router modules are wired from it; nothing in it is mutated after startup.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	// Redis backs rate limiting; nil disables the limiters.
	Redis *redis.Client

	JWT  *helpers.JWTManager
	Auth *application.AuthService
}

// Limiter returns the redis handle for rate limiting, or nil when redis is not configured.
func (c *Container) Limiter() redis.Cmdable {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis
}

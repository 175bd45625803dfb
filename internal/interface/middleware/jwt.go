package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/authcore/pkg/helpers"
	"github.com/oksasatya/authcore/pkg/response"
)

const CtxUserIDKey = "userID"

// bearerToken prefers the Authorization header and falls back to the access_token cookie.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	tok, _ := c.Cookie("access_token")
	return tok
}

// JWTAuth validates the access token and injects the user id into context.
// It is stateless: the user record is not re-read.
func JWTAuth(jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Fail(c, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		claims, err := jwt.Verify(token)
		if err != nil {
			if errors.Is(err, helpers.ErrExpiredToken) {
				response.Fail(c, http.StatusUnauthorized, "expired_token", "access token expired")
				return
			}
			response.Fail(c, http.StatusUnauthorized, "invalid_token", "invalid access token")
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

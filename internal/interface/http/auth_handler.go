package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/internal/application"
	"github.com/oksasatya/authcore/internal/interface/middleware"
	"github.com/oksasatya/authcore/pkg/helpers"
	"github.com/oksasatya/authcore/pkg/response"
)

type AuthHandler struct {
	Svc     *application.AuthService
	Logger  *logrus.Logger
	Cookies *helpers.Manager
}

func NewAuthHandler(svc *application.AuthService, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type confirmRequest struct {
	Token string `json:"token"`
}

// reply writes env on success or the error envelope otherwise.
func reply[T any](c *gin.Context, env response.Envelope[T], err error) {
	if err != nil {
		response.Abort(c, err)
		return
	}
	response.JSON(c, env)
}

func (h *AuthHandler) setCookies(c *gin.Context, access, refresh string) {
	now := time.Now()
	h.Cookies.SetPair(c, access, now.Add(h.Svc.JWT.AccessTTL), refresh, now.Add(h.Svc.JWT.RefreshTTL))
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in application.CreateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Abort(c, application.InvalidPayload(err))
		return
	}
	env, err := h.Svc.RegisterUser(c.Request.Context(), in)
	reply(c, env, err)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in application.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Abort(c, application.InvalidPayload(err))
		return
	}
	env, err := h.Svc.LoginUser(c.Request.Context(), in)
	if err == nil {
		h.setCookies(c, env.Data.AccessToken, env.Data.RefreshToken)
	}
	reply(c, env, err)
}

// Google POST /api/auth/google
func (h *AuthHandler) Google(c *gin.Context) {
	var in application.GoogleUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Abort(c, application.InvalidPayload(err))
		return
	}
	env, err := h.Svc.LoginGoogleUser(c.Request.Context(), in)
	if err == nil {
		h.setCookies(c, env.Data.AccessToken, env.Data.RefreshToken)
	}
	reply(c, env, err)
}

// Refresh POST /api/auth/refresh; the token comes from the body or the refresh_token cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie("refresh_token")
	}
	if req.RefreshToken == "" {
		response.Fail(c, http.StatusUnauthorized, string(application.KindUnauthorized), "missing refresh token")
		return
	}
	env, err := h.Svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err == nil {
		h.setCookies(c, env.Data.AccessToken, env.Data.RefreshToken)
	}
	reply(c, env, err)
}

// ConfirmEmail POST /api/auth/verify/confirm
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Abort(c, application.InvalidPayload(err))
		return
	}
	env, err := h.Svc.ConfirmEmail(c.Request.Context(), req.Token)
	reply(c, env, err)
}

// EmailExists GET /api/auth/email-exists?email=
func (h *AuthHandler) EmailExists(c *gin.Context) {
	env, err := h.Svc.EmailExists(c.Request.Context(), c.Query("email"))
	reply(c, env, err)
}

// UsernameExists GET /api/auth/username-exists?username=
func (h *AuthHandler) UsernameExists(c *gin.Context) {
	env, err := h.Svc.UsernameExists(c.Request.Context(), c.Query("username"))
	reply(c, env, err)
}

// ChangePassword PUT /api/auth/password (auth required)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var in application.ChangePasswordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Abort(c, application.InvalidPayload(err))
		return
	}
	env, err := h.Svc.ChangePassword(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), in)
	reply(c, env, err)
}

// Logout POST /api/auth/logout only clears cookies; tokens stay valid until they expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.JSON(c, response.Success[any](http.StatusOK, nil, "logged out"))
}

package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-intake-api/internal/dto"
	"github.com/noah-isme/scholarship-intake-api/internal/middleware"
	"github.com/noah-isme/scholarship-intake-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
	"github.com/noah-isme/scholarship-intake-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.Session, error)
}

// CookieSettings describe the session cookie written on login.
type CookieSettings struct {
	Name   string
	Secure bool
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service   authService
	cookie    CookieSettings
	adminPath string
	loginPath string
}

// NewAuthHandler creates a new handler. adminPath and loginPath are used when the login form is
// posted by a browser page instead of an API client.
func NewAuthHandler(svc authService, cookie CookieSettings, adminPath, loginPath string) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "auth_token"
	}
	return &AuthHandler{service: svc, cookie: cookie, adminPath: adminPath, loginPath: loginPath}
}

// Login godoc
// @Summary Authenticate the administrator
// @Description Sets an HttpOnly session cookie valid for 24 hours
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginFailed(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	session, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.loginFailed(c, err)
		return
	}

	maxAge := int(session.ExpiresAt.Sub(session.IssuedAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, session.Token, maxAge, "/", "", h.cookie.Secure, true)

	if h.fromPage(c) {
		c.Redirect(http.StatusSeeOther, safeNext(c.PostForm("next"), h.adminPath))
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionResponse{Username: session.Username, ExpiresAt: session.ExpiresAt})
}

// Logout godoc
// @Summary End the administrator session
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	if h.fromPage(c) {
		c.Redirect(http.StatusSeeOther, h.loginPath)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "logged out"})
}

// Me godoc
// @Summary Current administrator session
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.CurrentSession(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info := dto.SessionResponse{Username: claims.Username}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	response.JSON(c, http.StatusOK, info)
}

func (h *AuthHandler) loginFailed(c *gin.Context, err error) {
	if h.fromPage(c) && h.loginPath != "" {
		target := h.loginPath + "?error=1"
		if next := c.PostForm("next"); next != "" {
			target += "&next=" + url.QueryEscape(next)
		}
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	response.Error(c, err)
}

// fromPage reports whether the request came from the HTML login form.
func (h *AuthHandler) fromPage(c *gin.Context) bool {
	return c.ContentType() == "application/x-www-form-urlencoded" && strings.Contains(c.GetHeader("Accept"), "text/html")
}

// safeNext only follows local absolute paths.
func safeNext(next, fallback string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.Contains(next, `\`) {
		return next
	}
	return fallback
}

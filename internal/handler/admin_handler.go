package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/middleware"
	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates parses the admin page templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// AdminPaths tells the pages where to post forms and fetch data.
type AdminPaths struct {
	LoginAPI string
	Logout   string
	Admin    string
	APIBase  string
}

// AdminHandler renders the minimal administrator pages.
type AdminHandler struct {
	stats  statsService
	paths  AdminPaths
	logger *zap.Logger
}

// NewAdminHandler constructs the handler. The engine must have Templates loaded.
func NewAdminHandler(stats statsService, paths AdminPaths, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{stats: stats, paths: paths, logger: logger}
}

// LoginPage renders the sign-in form.
func (h *AdminHandler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Action": h.paths.LoginAPI,
		"Next":   safeNext(c.Query("next"), h.paths.Admin),
		"Failed": c.Query("error") != "",
	})
}

// Dashboard renders the landing page behind the session gate.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	claims, _ := middleware.CurrentSession(c)
	username := ""
	if claims != nil {
		username = claims.Username
	}

	var stats *models.ApplicationStats
	if h.stats != nil {
		summary, _, err := h.stats.Summary(c.Request.Context())
		if err != nil {
			h.logger.Warn("admin dashboard stats unavailable", zap.Error(err))
		} else {
			stats = summary
		}
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "admin.html", gin.H{
		"Username": username,
		"Stats":    stats,
		"Logout":   h.paths.Logout,
		"APIBase":  h.paths.APIBase,
	})
}

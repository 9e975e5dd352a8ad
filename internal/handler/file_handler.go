package handler

import (
	"context"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-intake-api/internal/service"
	"github.com/noah-isme/scholarship-intake-api/pkg/response"
)

type fileService interface {
	Open(ctx context.Context, filename string) (*service.DocumentDownload, error)
	OpenSigned(ctx context.Context, filename, token string) (*service.DocumentDownload, error)
}

// FileHandler streams stored applicant documents.
type FileHandler struct {
	service fileService
}

// NewFileHandler constructs the handler.
func NewFileHandler(svc fileService) *FileHandler {
	return &FileHandler{service: svc}
}

// Serve godoc
// @Summary Download a stored document
// @Tags Files
// @Produce octet-stream
// @Param filename path string true "Stored file name"
// @Param token query string false "Signed download token"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{filename} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	filename := c.Param("filename")
	var (
		download *service.DocumentDownload
		err      error
	)
	if token := c.Query("token"); token != "" {
		download, err = h.service.OpenSigned(c.Request.Context(), filename, token)
	} else {
		download, err = h.service.Open(c.Request.Context(), filename)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	disposition := mime.FormatMediaType("inline", map[string]string{"filename": download.OriginalName})
	if disposition == "" {
		disposition = "inline"
	}
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.ContentType, download.File, map[string]string{
		"Content-Disposition":    disposition,
		"Cache-Control":          "private, no-store",
		"X-Content-Type-Options": "nosniff",
	})
}

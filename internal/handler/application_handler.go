package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-intake-api/internal/dto"
	"github.com/noah-isme/scholarship-intake-api/internal/models"
	"github.com/noah-isme/scholarship-intake-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
	"github.com/noah-isme/scholarship-intake-api/pkg/response"
)

const multipartOverhead = 1 << 20

type applicationService interface {
	CheckStep(step service.IntakeStep, draft service.IntakeDraft) service.StepResult
	Submit(ctx context.Context, draft service.IntakeDraft, uploads []service.DocumentUpload) (*service.SubmissionResult, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, models.Pagination, error)
	Get(ctx context.Context, id int64) (*service.ApplicationDetail, error)
	UpdateStatus(ctx context.Context, id int64, status models.ApplicationStatus) (*models.Application, error)
	Delete(ctx context.Context, id int64) error
	DrawWinner(ctx context.Context) (*service.WinnerResult, error)
	Export(ctx context.Context, filter models.ApplicationFilter, format service.ExportFormat) (*service.ExportFile, error)
}

// ApplicationHandler exposes intake and review endpoints.
type ApplicationHandler struct {
	service     applicationService
	maxBodySize int64
}

// NewApplicationHandler constructs the handler. maxFileSize bounds a single document and is
// used to cap the whole multipart body.
func NewApplicationHandler(svc applicationService, maxFileSize int64) *ApplicationHandler {
	var maxBody int64
	if maxFileSize > 0 {
		maxBody = maxFileSize*int64(len(models.DocumentTypes)+1) + multipartOverhead
	}
	return &ApplicationHandler{service: svc, maxBodySize: maxBody}
}

// Submit godoc
// @Summary Submit a scholarship application
// @Description Multipart form with the applicant fields and one file per document slot
// @Tags Applications
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	if h.maxBodySize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize)
	}
	var draft service.IntakeDraft
	if err := c.ShouldBind(&draft); err != nil {
		response.Error(c, bindError(err, "invalid application form"))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, bindError(err, "multipart form expected"))
		return
	}
	uploads, files, err := openUploads(form)
	defer closeFiles(files)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable document upload"))
		return
	}
	draft.Documents = filledSlots(form)

	result, err := h.service.Submit(c.Request.Context(), draft, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Validate godoc
// @Summary Evaluate one form step
// @Tags Applications
// @Accept json
// @Produce json
// @Param step query int true "Step number (1-5)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/validate [post]
func (h *ApplicationHandler) Validate(c *gin.Context) {
	stepNumber, err := strconv.Atoi(c.Query("step"))
	step := service.IntakeStep(stepNumber)
	if err != nil || !step.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "step must be between 1 and 5"))
		return
	}

	var draft service.IntakeDraft
	if err := c.ShouldBind(&draft); err != nil {
		response.Error(c, bindError(err, "invalid application form"))
		return
	}
	if form, err := c.MultipartForm(); err == nil {
		draft.Documents = filledSlots(form)
	}

	response.JSON(c, http.StatusOK, h.service.CheckStep(step, draft))
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param search query string false "Name, email or national id"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	apps, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ApplicationListResponse{Applications: apps, Pagination: pagination})
}

// Export godoc
// @Summary Export applications
// @Tags Applications
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /applications/export [get]
func (h *ApplicationHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// Winner godoc
// @Summary Draw a winner among approved applications
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /applications/winner [post]
func (h *ApplicationHandler) Winner(c *gin.Context) {
	result, err := h.service.DrawWinner(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Get godoc
// @Summary Get application with documents
// @Tags Applications
// @Produce json
// @Param id path int true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	id, err := applicationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// UpdateStatus godoc
// @Summary Change the review status
// @Tags Review
// @Accept json
// @Produce json
// @Param id path int true "Application ID"
// @Param payload body dto.UpdateStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [put]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	id, err := applicationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}
	app, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Delete godoc
// @Summary Delete application and its documents
// @Tags Applications
// @Param id path int true "Application ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	id, err := applicationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func applicationID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid application id")
	}
	return id, nil
}

func filterFromQuery(c *gin.Context) (models.ApplicationFilter, error) {
	filter := models.ApplicationFilter{
		Status:   models.ApplicationStatus(strings.TrimSpace(c.Query("status"))),
		Category: models.Category(strings.TrimSpace(c.Query("category"))),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	var err error
	if filter.Page, err = optionalInt(c.Query("page")); err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "page must be a number")
	}
	if filter.Limit, err = optionalInt(c.Query("limit")); err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "limit must be a number")
	}
	return filter, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func bindError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "request body too large")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func filledSlots(form *multipart.Form) []models.DocumentType {
	if form == nil {
		return nil
	}
	var slots []models.DocumentType
	for _, docType := range models.DocumentTypes {
		if len(form.File[string(docType)]) > 0 {
			slots = append(slots, docType)
		}
	}
	return slots
}

func openUploads(form *multipart.Form) ([]service.DocumentUpload, []multipart.File, error) {
	var (
		uploads []service.DocumentUpload
		files   []multipart.File
	)
	for _, docType := range models.DocumentTypes {
		for _, header := range form.File[string(docType)] {
			file, err := header.Open()
			if err != nil {
				return nil, files, err
			}
			files = append(files, file)
			uploads = append(uploads, service.DocumentUpload{
				DocumentType: docType,
				Filename:     header.Filename,
				Size:         header.Size,
				MimeType:     header.Header.Get("Content-Type"),
				Content:      file,
			})
		}
	}
	return uploads, files, nil
}

func closeFiles(files []multipart.File) {
	for _, file := range files {
		_ = file.Close()
	}
}

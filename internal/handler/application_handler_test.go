package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-intake-api/internal/dto"
	"github.com/noah-isme/scholarship-intake-api/internal/models"
	"github.com/noah-isme/scholarship-intake-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

type fakeApplicationSrv struct {
	draft        service.IntakeDraft
	uploads      []service.DocumentUpload
	uploadBodies []string
	submitErr    error

	step service.IntakeStep

	filter     models.ApplicationFilter
	listResult []models.Application

	getErr       error
	statusID     int64
	status       models.ApplicationStatus
	deletedID    int64
	exportFormat service.ExportFormat
}

func (f *fakeApplicationSrv) CheckStep(step service.IntakeStep, draft service.IntakeDraft) service.StepResult {
	f.step = step
	f.draft = draft
	return service.StepResult{Step: step, Passed: true, Violations: []service.Violation{}}
}

func (f *fakeApplicationSrv) Submit(_ context.Context, draft service.IntakeDraft, uploads []service.DocumentUpload) (*service.SubmissionResult, error) {
	f.draft = draft
	f.uploads = uploads
	for _, upload := range uploads {
		body, _ := io.ReadAll(upload.Content)
		f.uploadBodies = append(f.uploadBodies, string(body))
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &service.SubmissionResult{ApplicationID: 42}, nil
}

func (f *fakeApplicationSrv) List(_ context.Context, filter models.ApplicationFilter) ([]models.Application, models.Pagination, error) {
	f.filter = filter
	return f.listResult, models.NewPagination(2, 10, 15), nil
}

func (f *fakeApplicationSrv) Get(_ context.Context, id int64) (*service.ApplicationDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &service.ApplicationDetail{Application: &models.Application{ID: id}}, nil
}

func (f *fakeApplicationSrv) UpdateStatus(_ context.Context, id int64, status models.ApplicationStatus) (*models.Application, error) {
	f.statusID = id
	f.status = status
	return &models.Application{ID: id, Status: status}, nil
}

func (f *fakeApplicationSrv) Delete(_ context.Context, id int64) error {
	f.deletedID = id
	return nil
}

func (f *fakeApplicationSrv) DrawWinner(context.Context) (*service.WinnerResult, error) {
	return &service.WinnerResult{Drawn: false, Message: service.NoWinnerMessage}, nil
}

func (f *fakeApplicationSrv) Export(_ context.Context, filter models.ApplicationFilter, format service.ExportFormat) (*service.ExportFile, error) {
	f.filter = filter
	f.exportFormat = format
	return &service.ExportFile{Filename: "applications_20250501.csv", ContentType: "text/csv; charset=utf-8", Payload: []byte("id\n1\n")}, nil
}

type formFile struct {
	field       string
	filename    string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files []formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		header.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(file.body))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestApplicationHandlerSubmitCollectsFieldsAndFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = multipartRequest(t, "/applications", map[string]string{
		"fullName":     "Ana Silva",
		"email":        "ana@example.com",
		"gradeAverage": "17,5",
	}, []formFile{
		{field: "national-id", filename: "bi.pdf", contentType: "application/pdf", body: "%PDF-1.4 id"},
		{field: "grade-transcript", filename: "notas.png", contentType: "image/png", body: "png-bytes"},
		{field: "unrelated", filename: "x.txt", contentType: "text/plain", body: "ignored"},
	})

	handler.Submit(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result service.SubmissionResult
	decodeEnvelope(t, rec.Body.Bytes(), &result)
	assert.Equal(t, int64(42), result.ApplicationID)

	assert.Equal(t, "Ana Silva", srv.draft.FullName)
	assert.Equal(t, "17,5", srv.draft.GradeAverage)
	assert.Equal(t, []models.DocumentType{models.DocumentNationalID, models.DocumentGradeTranscript}, srv.draft.Documents)
	require.Len(t, srv.uploads, 2)
	assert.Equal(t, "bi.pdf", srv.uploads[0].Filename)
	assert.Equal(t, "application/pdf", srv.uploads[0].MimeType)
	assert.Equal(t, int64(len("%PDF-1.4 id")), srv.uploads[0].Size)
	assert.Equal(t, []string{"%PDF-1.4 id", "png-bytes"}, srv.uploadBodies)
}

func TestApplicationHandlerSubmitRequiresMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeApplicationSrv{}, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"fullName":"Ana"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplicationHandlerSubmitPropagatesConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{submitErr: appErrors.Clone(appErrors.ErrConflict, "an application with this email already exists")}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = multipartRequest(t, "/applications", map[string]string{"email": "ana@example.com"}, nil)

	handler.Submit(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes(), nil)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CONFLICT", envelope.Error.Code)
}

func TestApplicationHandlerValidateStep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/applications/validate?step=9", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Validate(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/applications/validate?step=2", strings.NewReader(`{"gradeAverage":"18","documents":["national-id"]}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Validate(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.StepAcademic, srv.step)
	assert.Equal(t, "18", srv.draft.GradeAverage)
	assert.Equal(t, []models.DocumentType{models.DocumentNationalID}, srv.draft.Documents)
}

func TestApplicationHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{listResult: []models.Application{{ID: 1}, {ID: 2}}}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications?status=pending&category=postgraduate&search=ana&page=2&limit=10", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ApplicationFilter{Status: models.StatusPending, Category: models.CategoryPostgraduate, Search: "ana", Page: 2, Limit: 10}, srv.filter)
	var page dto.ApplicationListResponse
	decodeEnvelope(t, rec.Body.Bytes(), &page)
	assert.Len(t, page.Applications, 2)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications?page=two", nil)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplicationHandlerGetValidatesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Get(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv.getErr = appErrors.Clone(appErrors.ErrNotFound, "application not found")
	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplicationHandlerUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/applications/7", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.UpdateStatus(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/applications/7", strings.NewReader(`{"status":"rejected"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), srv.statusID)
	assert.Equal(t, models.StatusRejected, srv.status)
}

func TestApplicationHandlerDeleteExportAndWinner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeApplicationSrv{}
	handler := NewApplicationHandler(srv, 5<<20)

	rec := serveRoute(http.MethodDelete, "/applications/:id", handler.Delete,
		httptest.NewRequest(http.MethodDelete, "/applications/9", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int64(9), srv.deletedID)

	rec = httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications/export?format=xlsx", nil)
	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/applications/export?status=approved", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExportCSV, srv.exportFormat)
	assert.Equal(t, models.StatusApproved, srv.filter.Status)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "applications_20250501.csv")

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/applications/winner", nil)
	handler.Winner(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var result service.WinnerResult
	decodeEnvelope(t, rec.Body.Bytes(), &result)
	assert.False(t, result.Drawn)
	assert.Equal(t, "no winner", result.Message)
	assert.Nil(t, result.Winner)
}

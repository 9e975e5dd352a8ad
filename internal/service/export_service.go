package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
	"github.com/noah-isme/scholarship-intake-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat defaults to CSV when raw is empty.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders application listings for offline review.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

var applicationExportColumns = []export.Column{
	{Key: "id", Label: "ID", Width: 0.5},
	{Key: "fullName", Label: "Nome", Width: 2},
	{Key: "email", Label: "Email", Width: 2},
	{Key: "nationalId", Label: "BI", Width: 1.3},
	{Key: "phone", Label: "Telefone", Width: 1.2},
	{Key: "province", Label: "Província", Width: 1},
	{Key: "category", Label: "Categoria", Width: 1.4},
	{Key: "gradeAverage", Label: "Média", Width: 0.6},
	{Key: "university", Label: "Universidade", Width: 1.6},
	{Key: "status", Label: "Estado", Width: 0.9},
	{Key: "createdAt", Label: "Submetida em", Width: 1.1},
}

// Render builds the requested file from the applications.
func (s *ExportService) Render(apps []models.Application, format ExportFormat) (*ExportFile, error) {
	dataset := export.Dataset{Columns: applicationExportColumns, Rows: make([]map[string]string, 0, len(apps))}
	for _, app := range apps {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":           strconv.FormatInt(app.ID, 10),
			"fullName":     app.FullName,
			"email":        app.Email,
			"nationalId":   app.NationalID,
			"phone":        app.Phone,
			"province":     app.Province,
			"category":     string(app.Category),
			"gradeAverage": strconv.FormatFloat(app.GradeAverage, 'f', 1, 64),
			"university":   deref(app.University),
			"status":       string(app.Status),
			"createdAt":    app.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	stamp := s.now().UTC().Format("20060102_150405")
	var (
		payload     []byte
		contentType string
		err         error
	)
	switch format {
	case ExportCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	case ExportPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Candidaturas (%d)", len(apps)))
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("applications exported", zap.String("format", string(format)), zap.Int("rows", len(apps)))
	return &ExportFile{
		Filename:    fmt.Sprintf("applications_%s.%s", stamp, format),
		ContentType: contentType,
		Payload:     payload,
		Rows:        len(apps),
	}, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
	"github.com/noah-isme/scholarship-intake-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	ListIDsByStatus(ctx context.Context, status models.ApplicationStatus) ([]int64, error)
	UpdateStatus(ctx context.Context, id int64, status models.ApplicationStatus, at time.Time) (*models.Application, error)
	Delete(ctx context.Context, id int64) ([]models.Document, error)
}

type applicationDocuments interface {
	Validate(upload *DocumentUpload) error
	StoreBatch(ctx context.Context, applicationID int64, uploads []DocumentUpload) ([]models.DocumentOutcome, bool)
	ListByApplication(ctx context.Context, applicationID int64) ([]DocumentView, error)
	RemoveFiles(docs []models.Document)
}

type applicationExporter interface {
	Render(apps []models.Application, format ExportFormat) (*ExportFile, error)
}

type statsInvalidator interface {
	Invalidate(ctx context.Context)
}

type reviewRecorder interface {
	RecordSubmission(outcome string)
	RecordWinnerDraw(drawn bool)
}

// SubmissionResult is returned after a successful submission. Degraded is set when at least
// one document could not be stored; Documents says which.
type SubmissionResult struct {
	ApplicationID int64                    `json:"applicationId"`
	Documents     []models.DocumentOutcome `json:"documents"`
	Degraded      bool                     `json:"degraded"`
}

// ApplicationDetail is an application with its documents.
type ApplicationDetail struct {
	Application *models.Application `json:"application"`
	Documents   []DocumentView      `json:"documents"`
}

// ApplicationService coordinates intake, review and removal of applications.
type ApplicationService struct {
	repo     applicationStore
	docs     applicationDocuments
	rules    *IntakeRules
	exporter applicationExporter
	stats    statsInvalidator
	metrics  reviewRecorder
	picker   WinnerPicker
	logger   *zap.Logger
	now      func() time.Time
}

// NewApplicationService wires the service. Optional collaborators may be nil.
func NewApplicationService(repo applicationStore, docs applicationDocuments, rules *IntakeRules, exporter applicationExporter, stats statsInvalidator, metrics reviewRecorder, picker WinnerPicker, logger *zap.Logger) *ApplicationService {
	if rules == nil {
		rules = NewIntakeRules(IntakeRulesConfig{}, nil)
	}
	if exporter == nil {
		exporter = NewExportService(nil, nil, logger)
	}
	if picker == nil {
		picker = CryptoPicker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:     repo,
		docs:     docs,
		rules:    rules,
		exporter: exporter,
		stats:    stats,
		metrics:  metrics,
		picker:   picker,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckStep evaluates one intake step against the draft.
func (s *ApplicationService) CheckStep(step IntakeStep, draft IntakeDraft) StepResult {
	return s.rules.CheckStep(step, draft)
}

// Submit runs the intake rules, validates every upload, creates the application and then
// stores the documents one by one. Nothing is written when a rule or upload check fails.
func (s *ApplicationService) Submit(ctx context.Context, draft IntakeDraft, uploads []DocumentUpload) (*SubmissionResult, error) {
	slots := make(map[models.DocumentType]struct{}, len(uploads))
	draft.Documents = draft.Documents[:0:0]
	for _, upload := range uploads {
		if _, seen := slots[upload.DocumentType]; seen {
			s.record("rejected")
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("only one %s file may be uploaded", upload.DocumentType))
		}
		slots[upload.DocumentType] = struct{}{}
		draft.Documents = append(draft.Documents, upload.DocumentType)
	}

	if violations := s.rules.CheckSubmission(draft); len(violations) > 0 {
		s.record("rejected")
		return nil, appErrors.WithDetails(appErrors.ErrValidation, violations[0].Reason, violations)
	}
	for i := range uploads {
		if s.docs == nil {
			break
		}
		if err := s.docs.Validate(&uploads[i]); err != nil {
			s.record("rejected")
			return nil, err
		}
	}

	app, err := s.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	result := &SubmissionResult{ApplicationID: app.ID, Documents: []models.DocumentOutcome{}}
	if s.docs != nil && len(uploads) > 0 {
		result.Documents, result.Degraded = s.docs.StoreBatch(ctx, app.ID, uploads)
	}
	if result.Degraded {
		s.record("degraded")
		s.logger.Warn("application stored with missing documents", zap.Int64("application_id", app.ID))
	} else {
		s.record("accepted")
	}
	s.invalidateStats(ctx)
	return result, nil
}

// Create inserts an application after checking, in order, that the columns the store needs
// are present, that the email is unused and that numeric fields parse.
func (s *ApplicationService) Create(ctx context.Context, draft IntakeDraft) (*models.Application, error) {
	if missing := missingRecordFields(draft); len(missing) > 0 {
		s.record("rejected")
		return nil, appErrors.WithDetails(appErrors.ErrValidation, missing[0]+" is required", missing)
	}

	email := normalizeEmail(draft.Email)
	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		s.record("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		s.record("duplicate")
		return nil, appErrors.Clone(appErrors.ErrConflict, "an application with this email already exists")
	}

	app, err := buildApplication(draft)
	if err != nil {
		s.record("rejected")
		return nil, err
	}
	if err := s.repo.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.record("duplicate")
			return nil, appErrors.Clone(appErrors.ErrConflict, "an application with this email already exists")
		}
		s.record("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.logger.Info("application created", zap.Int64("application_id", app.ID), zap.String("category", string(app.Category)))
	return app, nil
}

// List returns one page of applications and its pagination block.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, models.Pagination, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, models.NewPagination(filter.Page, filter.Limit, total), nil
}

// Get returns the application with its documents.
func (s *ApplicationService) Get(ctx context.Context, id int64) (*ApplicationDetail, error) {
	app, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ApplicationDetail{Application: app, Documents: []DocumentView{}}
	if s.docs != nil {
		docs, err := s.docs.ListByApplication(ctx, id)
		if err != nil {
			return nil, err
		}
		detail.Documents = docs
	}
	return detail, nil
}

// UpdateStatus sets any of the four statuses. Moves outside the normal review flow are
// allowed and logged.
func (s *ApplicationService) UpdateStatus(ctx context.Context, id int64, status models.ApplicationStatus) (*models.Application, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of pending, under-review, approved, rejected")
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsWorkflowTransition(current.Status, status) {
		s.logger.Warn("status change outside review flow",
			zap.Int64("application_id", id),
			zap.String("from", string(current.Status)),
			zap.String("to", string(status)),
		)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// Delete removes the application and its documents, then cleans up the files.
func (s *ApplicationService) Delete(ctx context.Context, id int64) error {
	docs, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete application")
	}
	if s.docs != nil {
		s.docs.RemoveFiles(docs)
	}
	s.logger.Info("application deleted", zap.Int64("application_id", id), zap.Int("documents", len(docs)))
	s.invalidateStats(ctx)
	return nil
}

// DrawWinner picks one approved application uniformly at random.
func (s *ApplicationService) DrawWinner(ctx context.Context) (*WinnerResult, error) {
	ids, err := s.repo.ListIDsByStatus(ctx, models.StatusApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved applications")
	}
	if len(ids) == 0 {
		s.recordDraw(false)
		return &WinnerResult{Drawn: false, Message: NoWinnerMessage}, nil
	}
	idx, err := s.picker(len(ids))
	if err != nil || idx < 0 || idx >= len(ids) {
		if err == nil {
			err = fmt.Errorf("picker returned %d for %d candidates", idx, len(ids))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to draw winner")
	}
	winner, err := s.find(ctx, ids[idx])
	if err != nil {
		return nil, err
	}
	s.recordDraw(true)
	s.logger.Info("winner drawn", zap.Int64("application_id", winner.ID), zap.Int("candidates", len(ids)))
	return &WinnerResult{Winner: winner, Drawn: true, Message: "winner drawn", Candidates: len(ids)}, nil
}

// Export renders every application matching the filter.
func (s *ApplicationService) Export(ctx context.Context, filter models.ApplicationFilter, format ExportFormat) (*ExportFile, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	apps, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applications")
	}
	return s.exporter.Render(apps, format)
}

func (s *ApplicationService) find(ctx context.Context, id int64) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

func (s *ApplicationService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
}

func (s *ApplicationService) recordDraw(drawn bool) {
	if s.metrics != nil {
		s.metrics.RecordWinnerDraw(drawn)
	}
}

func normalizeFilter(filter models.ApplicationFilter) (models.ApplicationFilter, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown category filter")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return filter, nil
}

type recordField struct {
	name  string
	value string
}

// missingRecordFields lists the NOT NULL columns the draft leaves blank. Course and
// university are only demanded from enrolled applicants.
func missingRecordFields(d IntakeDraft) []string {
	required := []recordField{
		{"fullName", d.FullName},
		{"birthDate", d.BirthDate},
		{"nationalId", d.NationalID},
		{"phone", d.Phone},
		{"email", d.Email},
		{"gender", d.Gender},
		{"address", d.Address},
		{"city", d.City},
		{"province", d.Province},
		{"enrollmentStatus", d.EnrollmentStatus},
		{"schoolName", d.SchoolName},
		{"gradeAverage", d.GradeAverage},
		{"category", d.Category},
		{"motivationLetter", d.MotivationLetter},
		{"familyIncome", d.FamilyIncome},
		{"objectives", d.Objectives},
		{"academicExperience", d.AcademicExperience},
		{"extracurricularActivities", d.ExtracurricularActivities},
		{"references", d.References},
	}
	if d.Enrolled() {
		required = append(required, recordField{"university", d.University}, recordField{"course", d.Course})
	}
	missing := make([]string, 0)
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func buildApplication(d IntakeDraft) (*models.Application, error) {
	grade, err := ParseDecimal(d.GradeAverage)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final grade average must be a number")
	}
	if grade < gradeScaleMin || grade > gradeScaleMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final grade average must be between 0 and 20")
	}
	income, err := ParseDecimal(d.FamilyIncome)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "family income must be a number")
	}
	dependents := 0
	if raw := strings.TrimSpace(d.Dependents); raw != "" {
		if dependents, err = strconv.Atoi(raw); err != nil || dependents < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dependents must be a whole number of zero or more")
		}
	}
	birthDate, err := time.Parse(birthDateLayout, strings.TrimSpace(d.BirthDate))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birth date must use the YYYY-MM-DD format")
	}

	enrollment := models.EnrollmentStatus(strings.TrimSpace(d.EnrollmentStatus))
	if !enrollment.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment status must be not-enrolled or enrolled")
	}
	category := models.Category(strings.TrimSpace(d.Category))
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category is not recognised")
	}
	var financial *models.FinancialSituation
	if raw := strings.TrimSpace(d.FinancialSituation); raw != "" {
		value := models.FinancialSituation(raw)
		if !value.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "financial situation is not recognised")
		}
		financial = &value
	}

	return &models.Application{
		FullName:                  strings.TrimSpace(d.FullName),
		BirthDate:                 birthDate,
		NationalID:                strings.TrimSpace(d.NationalID),
		Phone:                     strings.TrimSpace(d.Phone),
		Email:                     normalizeEmail(d.Email),
		Gender:                    strings.TrimSpace(d.Gender),
		Address:                   strings.TrimSpace(d.Address),
		City:                      strings.TrimSpace(d.City),
		Province:                  strings.TrimSpace(d.Province),
		EnrollmentStatus:          enrollment,
		SchoolName:                strings.TrimSpace(d.SchoolName),
		GradeAverage:              grade,
		University:                optionalText(d.University),
		Course:                    optionalText(d.Course),
		AcademicYear:              optionalText(d.AcademicYear),
		MotivationLetter:          strings.TrimSpace(d.MotivationLetter),
		Objectives:                strings.TrimSpace(d.Objectives),
		AcademicExperience:        strings.TrimSpace(d.AcademicExperience),
		ExtracurricularActivities: strings.TrimSpace(d.ExtracurricularActivities),
		References:                strings.TrimSpace(d.References),
		FinancialSituation:        financial,
		FamilyIncome:              income,
		Dependents:                dependents,
		Category:                  category,
		Status:                    models.StatusPending,
	}, nil
}

func optionalText(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

const applicationColumns = `id, full_name, birth_date, national_id, phone, email, gender, address, city, province,
       enrollment_status, school_name, grade_average, university, course, academic_year,
       motivation_letter, objectives, academic_experience, extracurricular_activities, reference_contacts,
       financial_situation, family_income, dependents, category, status, created_at, updated_at`

// ApplicationRepository persists application rows.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository around a shared pool.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts the application and fills in its generated id. Created and updated
// timestamps are set to the same instant.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	if app.Status == "" {
		app.Status = models.StatusPending
	}
	app.CreatedAt = now
	app.UpdatedAt = now

	const query = `INSERT INTO applications (full_name, birth_date, national_id, phone, email, gender, address, city, province,
       enrollment_status, school_name, grade_average, university, course, academic_year,
       motivation_letter, objectives, academic_experience, extracurricular_activities, reference_contacts,
       financial_situation, family_income, dependents, category, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		app.FullName, app.BirthDate, app.NationalID, app.Phone, app.Email, app.Gender, app.Address, app.City, app.Province,
		app.EnrollmentStatus, app.SchoolName, app.GradeAverage, app.University, app.Course, app.AcademicYear,
		app.MotivationLetter, app.Objectives, app.AcademicExperience, app.ExtracurricularActivities, app.References,
		app.FinancialSituation, app.FamilyIncome, app.Dependents, app.Category, app.Status, app.CreatedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create application: %w", ErrDuplicate)
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether an application already uses the email, ignoring case.
func (r *ApplicationRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM applications WHERE LOWER(email) = LOWER($1) LIMIT 1", email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check application email: %w", err)
	}
	return true, nil
}

// FindByID returns one application or sql.ErrNoRows.
func (r *ApplicationRepository) FindByID(ctx context.Context, id int64) (*models.Application, error) {
	var app models.Application
	if err := r.db.GetContext(ctx, &app, "SELECT "+applicationColumns+" FROM applications WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns one page of applications, newest first, with the unpaginated total.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	where, args := applicationConditions(filter)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Limit
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", applicationColumns, where, size, offset)
	apps := make([]models.Application, 0)
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM applications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ListAll returns every application matching the filter, ignoring pagination.
func (r *ApplicationRepository) ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	where, args := applicationConditions(filter)
	apps := make([]models.Application, 0)
	query := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY created_at DESC, id DESC", applicationColumns, where)
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, fmt.Errorf("list all applications: %w", err)
	}
	return apps, nil
}

// ListIDsByStatus returns the ids of every application in the status.
func (r *ApplicationRepository) ListIDsByStatus(ctx context.Context, status models.ApplicationStatus) ([]int64, error) {
	ids := make([]int64, 0)
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM applications WHERE status = $1 ORDER BY id", status); err != nil {
		return nil, fmt.Errorf("list application ids by status: %w", err)
	}
	return ids, nil
}

// UpdateStatus sets the status, stamps updated_at and returns the stored row.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id int64, status models.ApplicationStatus, at time.Time) (*models.Application, error) {
	var app models.Application
	query := "UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1 RETURNING " + applicationColumns
	if err := r.db.GetContext(ctx, &app, query, id, status, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update application status: %w", err)
	}
	return &app, nil
}

// Delete removes the application's documents and then the application in one transaction.
// The removed document rows are returned so their files can be cleaned up.
func (r *ApplicationRepository) Delete(ctx context.Context, id int64) (docs []models.Document, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete application: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	docs = make([]models.Document, 0)
	query := "DELETE FROM application_documents WHERE application_id = $1 RETURNING " + documentColumns
	if err = tx.SelectContext(ctx, &docs, query, id); err != nil {
		return nil, fmt.Errorf("delete application documents: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("delete application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check application delete rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete application: %w", err)
	}
	return docs, nil
}

func applicationConditions(filter models.ApplicationFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(national_id) LIKE $%d)", n, n, n))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(raw)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

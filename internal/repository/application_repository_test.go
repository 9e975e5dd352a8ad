package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

var applicationRowColumns = []string{
	"id", "full_name", "birth_date", "national_id", "phone", "email", "gender", "address", "city", "province",
	"enrollment_status", "school_name", "grade_average", "university", "course", "academic_year",
	"motivation_letter", "objectives", "academic_experience", "extracurricular_activities", "reference_contacts",
	"financial_situation", "family_income", "dependents", "category", "status", "created_at", "updated_at",
}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func addApplicationRow(rows *sqlmock.Rows, id int64, status models.ApplicationStatus) *sqlmock.Rows {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "Ana Baptista", time.Date(2004, 3, 18, 0, 0, 0, 0, time.UTC), "004512378LA041", "+244923000111", "ana@example.org", "feminino", "Rua 12", "Luanda", "Luanda",
		"not-enrolled", "Liceu", 17.4, nil, "Engenharia", nil,
		"Quero estudar engenharia.", "Licenciatura", "Olimpíadas", "Voluntariado", "Prof. Domingos",
		nil, 85000.0, 2, "high-school-graduate", string(status), now, now,
	)
}

func TestApplicationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	course := "Engenharia"
	app := &models.Application{
		FullName:         "Ana Baptista",
		BirthDate:        time.Date(2004, 3, 18, 0, 0, 0, 0, time.UTC),
		Email:            "ana@example.org",
		EnrollmentStatus: models.EnrollmentNotEnrolled,
		GradeAverage:     17.4,
		Course:           &course,
		Category:         models.CategoryHighSchoolGraduate,
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, repo.Create(context.Background(), app))
	assert.Equal(t, int64(7), app.ID)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, app.CreatedAt, app.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_email_key"})

	err := repo.Create(context.Background(), &models.Application{Email: "ana@example.org"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestApplicationRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1)")).
		WithArgs("ANA@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsByEmail(context.Background(), "ANA@example.org")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1)")).
		WithArgs("other@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.ExistsByEmail(context.Background(), "other@example.org")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(applicationRowColumns))

	_, err := repo.FindByID(context.Background(), 99)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestApplicationRepositoryListSecondPage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	rows := sqlmock.NewRows(applicationRowColumns)
	for id := int64(5); id >= 1; id-- {
		addApplicationRow(rows, id, models.StatusPending)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 10")).
		WithArgs(models.StatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE status = $1")).
		WithArgs(models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{Status: models.StatusPending, Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, apps, 5)
	assert.Equal(t, 15, total)
	assert.Equal(t, models.CategoryHighSchoolGraduate, apps[0].Category)
	assert.Nil(t, apps[0].University)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListSearchEscapesWildcards(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE category = $1 AND (LOWER(full_name) LIKE $2")).
		WithArgs(models.CategoryPostgraduate, `%100\%%`).
		WillReturnRows(sqlmock.NewRows(applicationRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE category = $1")).
		WithArgs(models.CategoryPostgraduate, `%100\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{Category: models.CategoryPostgraduate, Search: " 100% "})
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	at := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs(int64(3), models.StatusRejected, at).
		WillReturnRows(addApplicationRow(sqlmock.NewRows(applicationRowColumns), 3, models.StatusRejected))

	app, err := repo.UpdateStatus(context.Background(), 3, models.StatusRejected, at)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, app.Status)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status")).
		WithArgs(int64(4), models.StatusApproved, at).
		WillReturnRows(sqlmock.NewRows(applicationRowColumns))
	_, err = repo.UpdateStatus(context.Background(), 4, models.StatusApproved, at)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM application_documents WHERE application_id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "document_type", "original_name", "stored_name", "file_path", "size_bytes", "mime_type", "uploaded_at"}).
			AddRow(int64(1), int64(3), "national-id", "bi.pdf", "1700000000000-abc.pdf", "uploads/1700000000000-abc.pdf", int64(2048), "application/pdf", time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	docs, err := repo.Delete(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1700000000000-abc.pdf", docs[0].StoredName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryDeleteMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM application_documents")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), 8)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListIDsByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM applications WHERE status = $1")).
		WithArgs(models.StatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)).AddRow(int64(9)))

	ids, err := repo.ListIDsByStatus(context.Background(), models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 9}, ids)
}

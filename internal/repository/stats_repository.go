package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

// GroupColumn is a column the stats queries may group by.
type GroupColumn string

const (
	GroupByStatus     GroupColumn = "status"
	GroupByCategory   GroupColumn = "category"
	GroupByProvince   GroupColumn = "province"
	GroupByGender     GroupColumn = "gender"
	GroupByUniversity GroupColumn = "university"
)

var groupColumns = map[GroupColumn]struct{}{
	GroupByStatus:     {},
	GroupByCategory:   {},
	GroupByProvince:   {},
	GroupByGender:     {},
	GroupByUniversity: {},
}

// StatsRepository runs the aggregate queries behind the admin dashboard.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountBy groups applications by a whitelisted column, largest group first.
// Empty and NULL values are omitted.
func (r *StatsRepository) CountBy(ctx context.Context, column GroupColumn) ([]models.CountBucket, error) {
	if _, ok := groupColumns[column]; !ok {
		return nil, fmt.Errorf("count by %q: column not allowed", column)
	}
	query := fmt.Sprintf(`SELECT %[1]s AS label, COUNT(*) AS count FROM applications
	WHERE %[1]s IS NOT NULL AND %[1]s <> ''
	GROUP BY %[1]s ORDER BY count DESC, label`, column)
	buckets := make([]models.CountBucket, 0)
	if err := r.db.SelectContext(ctx, &buckets, query); err != nil {
		return nil, fmt.Errorf("count applications by %s: %w", column, err)
	}
	return buckets, nil
}

// GradeBuckets counts applications per one-point grade band from 16 to 20.
func (r *StatsRepository) GradeBuckets(ctx context.Context) ([]models.CountBucket, error) {
	const query = `SELECT label, COUNT(*) AS count FROM (
		SELECT CASE
			WHEN grade_average < 16 THEN '<16'
			WHEN grade_average < 17 THEN '16-17'
			WHEN grade_average < 18 THEN '17-18'
			WHEN grade_average < 19 THEN '18-19'
			ELSE '19-20'
		END AS label
		FROM applications
	) banded GROUP BY label ORDER BY label`
	buckets := make([]models.CountBucket, 0)
	if err := r.db.SelectContext(ctx, &buckets, query); err != nil {
		return nil, fmt.Errorf("count grade buckets: %w", err)
	}
	return buckets, nil
}

// MonthlySubmissions counts applications per calendar month starting at since.
func (r *StatsRepository) MonthlySubmissions(ctx context.Context, since time.Time) ([]models.MonthlyCount, error) {
	const query = `SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, COUNT(*) AS count
	FROM applications WHERE created_at >= $1
	GROUP BY 1 ORDER BY 1`
	months := make([]models.MonthlyCount, 0)
	if err := r.db.SelectContext(ctx, &months, query, since); err != nil {
		return nil, fmt.Errorf("count monthly submissions: %w", err)
	}
	return months, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/database"
)

// ReportRepository runs read-only aggregations over the academic store.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// EnrollmentCounts returns one row per student with at least one enrollment,
// busiest first. Counts are returned as the store's bigint; callers narrow.
func (r *ReportRepository) EnrollmentCounts(ctx context.Context) ([]models.EnrollmentCountRow, error) {
	const query = `SELECT st.first_name || ' ' || st.last_name AS student_name,
        c.name AS career_name,
        COUNT(e.id) AS total_subjects
        FROM students st
        JOIN careers c ON c.id = st.career_id
        LEFT JOIN enrollments e ON e.student_id = st.id
        GROUP BY st.id, st.first_name, st.last_name, c.name
        HAVING COUNT(e.id) > 0
        ORDER BY total_subjects DESC, student_name ASC`
	var rows []models.EnrollmentCountRow
	if err := sqlx.SelectContext(ctx, database.Ext(ctx, r.db), &rows, query); err != nil {
		return nil, fmt.Errorf("aggregate enrollment counts: %w", err)
	}
	return rows, nil
}

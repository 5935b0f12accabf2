package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/database"
)

// ErrDuplicateEnrollment is returned by CreateEnrollment when the
// (student, subject, period) triple already exists.
var ErrDuplicateEnrollment = errors.New("duplicate enrollment")

const enrollmentUniqueConstraint = "enrollments_student_subject_period_key"

const (
	studentColumns = `id, user_id, first_name, last_name, email, phone, career_id, is_active, created_at`
	subjectColumns = `id, name, credits, career_id, cycle_id, total_quota, available_quota, created_at`
	periodColumns  = `id, name, start_date, end_date, is_active, created_at`

	enrollmentDetailSelect = `SELECT e.id, e.student_id, e.subject_id, e.academic_period_id, e.enrolled_at,
        st.id AS "student.id", st.first_name AS "student.first_name", st.last_name AS "student.last_name", st.email AS "student.email",
        s.id AS "subject.id", s.name AS "subject.name", s.credits AS "subject.credits", s.available_quota AS "subject.available_quota",
        c.id AS "subject.career.id", c.name AS "subject.career.name",
        cy.id AS "subject.cycle.id", cy.name AS "subject.cycle.name", cy.number AS "subject.cycle.number",
        p.id AS "academic_period.id", p.name AS "academic_period.name", p.is_active AS "academic_period.is_active"
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN subjects s ON s.id = e.subject_id
        JOIN careers c ON c.id = s.career_id
        JOIN cycles cy ON cy.id = s.cycle_id
        JOIN academic_periods p ON p.id = e.academic_period_id`
)

// AcademicRepository owns every read and write against the academic store.
// Methods run on the transaction carried by ctx when WithinTx started one, or
// on the pool otherwise.
type AcademicRepository struct {
	db *sqlx.DB
}

// NewAcademicRepository constructs the repository.
func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

// WithinTx runs fn inside one academic-store transaction.
func (r *AcademicRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, r.db, nil, fn)
}

func (r *AcademicRepository) ext(ctx context.Context) sqlx.ExtContext {
	return database.Ext(ctx, r.db)
}

// FindStudent returns sql.ErrNoRows when the student does not exist.
func (r *AcademicRepository) FindStudent(ctx context.Context, id int64) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.ext(ctx), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindSubject returns sql.ErrNoRows when the subject does not exist.
func (r *AcademicRepository) FindSubject(ctx context.Context, id int64) (*models.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := sqlx.GetContext(ctx, r.ext(ctx), &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindPeriod returns sql.ErrNoRows when the period does not exist.
func (r *AcademicRepository) FindPeriod(ctx context.Context, id int64) (*models.AcademicPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM academic_periods WHERE id = $1`
	var period models.AcademicPeriod
	if err := sqlx.GetContext(ctx, r.ext(ctx), &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// ExistsEnrollment checks the (student, subject, period) triple.
func (r *AcademicRepository) ExistsEnrollment(ctx context.Context, studentID, subjectID, periodID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2 AND academic_period_id = $3)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &exists, query, studentID, subjectID, periodID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// ReserveQuota takes one seat from the subject. The decrement only applies
// while a seat is left, so under concurrent callers the row lock serialises
// them and the ones arriving after the last seat match zero rows. It reports
// whether a seat was taken.
func (r *AcademicRepository) ReserveQuota(ctx context.Context, subjectID int64) (bool, error) {
	const query = `UPDATE subjects SET available_quota = available_quota - 1 WHERE id = $1 AND available_quota > 0`
	res, err := r.ext(ctx).ExecContext(ctx, query, subjectID)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return affectedOne(res, "reserve quota")
}

// ReleaseQuota gives one seat back to the subject.
func (r *AcademicRepository) ReleaseQuota(ctx context.Context, subjectID int64) (bool, error) {
	const query = `UPDATE subjects SET available_quota = available_quota + 1 WHERE id = $1`
	res, err := r.ext(ctx).ExecContext(ctx, query, subjectID)
	if err != nil {
		return false, fmt.Errorf("release quota: %w", err)
	}
	return affectedOne(res, "release quota")
}

// CreateEnrollment inserts the row and fills ID and EnrolledAt. A zero
// EnrolledAt takes the store's clock.
func (r *AcademicRepository) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (student_id, subject_id, academic_period_id, enrolled_at)
        VALUES ($1, $2, $3, COALESCE($4, now()))
        RETURNING id, enrolled_at`
	var enrolledAt interface{}
	if !enrollment.EnrolledAt.IsZero() {
		enrolledAt = enrollment.EnrolledAt
	}
	row := r.ext(ctx).QueryRowxContext(ctx, query, enrollment.StudentID, enrollment.SubjectID, enrollment.AcademicPeriodID, enrolledAt)
	if err := row.Scan(&enrollment.ID, &enrollment.EnrolledAt); err != nil {
		if database.IsUniqueViolation(err) && database.ConstraintName(err) == enrollmentUniqueConstraint {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindEnrollmentForUpdate loads and row-locks an enrollment. It must run
// inside WithinTx; sql.ErrNoRows when absent.
func (r *AcademicRepository) FindEnrollmentForUpdate(ctx context.Context, id int64) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, academic_period_id, enrolled_at FROM enrollments WHERE id = $1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.ext(ctx), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// DeleteEnrollment reports whether a row was removed.
func (r *AcademicRepository) DeleteEnrollment(ctx context.Context, id int64) (bool, error) {
	res, err := r.ext(ctx).ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return affectedOne(res, "delete enrollment")
}

// FindEnrollmentDetail returns sql.ErrNoRows when absent.
func (r *AcademicRepository) FindEnrollmentDetail(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, r.ext(ctx), &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListEnrollments returns every enrollment, newest first.
func (r *AcademicRepository) ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` ORDER BY e.enrolled_at DESC, e.id DESC`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &details, query); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return details, nil
}

// ListEnrollmentsByStudentPeriod narrows ListEnrollments to one student and period.
func (r *AcademicRepository) ListEnrollmentsByStudentPeriod(ctx context.Context, studentID, periodID int64) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND e.academic_period_id = $2 ORDER BY e.enrolled_at DESC, e.id DESC`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &details, query, studentID, periodID); err != nil {
		return nil, fmt.Errorf("list student period enrollments: %w", err)
	}
	return details, nil
}

func affectedOne(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n == 1, nil
}

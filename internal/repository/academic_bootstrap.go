package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

var academicTables = []string{
	"specialties", "careers", "cycles", "subjects", "academic_periods",
	"students", "teachers", "teacher_subjects", "student_subjects", "enrollments",
}

var (
	ensureSpecialtySQL = ensureStatement(
		`INSERT INTO specialties (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM specialties WHERE name = $1`)
	ensureCareerSQL = ensureStatement(
		`INSERT INTO careers (name, total_cycles, duration_years, specialty_id) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM careers WHERE name = $1`)
	ensureCycleSQL = ensureStatement(
		`INSERT INTO cycles (name, number) VALUES ($1, $2) ON CONFLICT (number) DO NOTHING`,
		`SELECT id FROM cycles WHERE number = $2`)
	ensureSubjectSQL = ensureStatement(
		`INSERT INTO subjects (name, credits, career_id, cycle_id, total_quota, available_quota)
        VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT ON CONSTRAINT subjects_career_cycle_name_key DO NOTHING`,
		`SELECT id FROM subjects WHERE career_id = $3 AND cycle_id = $4 AND name = $1`)
	ensurePeriodSQL = ensureStatement(
		`INSERT INTO academic_periods (name, start_date, end_date, is_active) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM academic_periods WHERE name = $1`)
	ensureStudentSQL = ensureStatement(
		`INSERT INTO students (user_id, first_name, last_name, email, phone, career_id) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (email) DO NOTHING`,
		`SELECT id FROM students WHERE email = $4`)
	ensureTeacherSQL = ensureStatement(
		`INSERT INTO teachers (user_id, first_name, last_name, email, phone) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (email) DO NOTHING`,
		`SELECT id FROM teachers WHERE email = $4`)
)

// EnsureSpecialty inserts by name unless present and fills s.ID.
func (r *AcademicRepository) EnsureSpecialty(ctx context.Context, s *models.Specialty) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure specialty", ensureSpecialtySQL, s.Name, s.Description)
	s.ID = id
	return created, err
}

// EnsureCareer inserts by name unless present and fills c.ID.
func (r *AcademicRepository) EnsureCareer(ctx context.Context, c *models.Career) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure career", ensureCareerSQL, c.Name, c.TotalCycles, c.DurationYears, c.SpecialtyID)
	c.ID = id
	return created, err
}

// EnsureCycle inserts by number unless present and fills c.ID.
func (r *AcademicRepository) EnsureCycle(ctx context.Context, c *models.Cycle) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure cycle", ensureCycleSQL, c.Name, c.Number)
	c.ID = id
	return created, err
}

// EnsureSubject inserts by (career, cycle, name) unless present and fills
// s.ID. A new subject starts with every seat available; an existing one
// keeps its current quota.
func (r *AcademicRepository) EnsureSubject(ctx context.Context, s *models.Subject) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure subject", ensureSubjectSQL, s.Name, s.Credits, s.CareerID, s.CycleID, s.TotalQuota)
	s.ID = id
	return created, err
}

// EnsurePeriod inserts by name unless present and fills p.ID.
func (r *AcademicRepository) EnsurePeriod(ctx context.Context, p *models.AcademicPeriod) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure academic period", ensurePeriodSQL, p.Name, p.StartDate, p.EndDate, p.IsActive)
	p.ID = id
	return created, err
}

// EnsureStudent inserts by email unless present and fills s.ID.
func (r *AcademicRepository) EnsureStudent(ctx context.Context, s *models.Student) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure student", ensureStudentSQL, s.UserID, s.FirstName, s.LastName, s.Email, s.Phone, s.CareerID)
	s.ID = id
	return created, err
}

// EnsureTeacher inserts by email unless present and fills t.ID.
func (r *AcademicRepository) EnsureTeacher(ctx context.Context, t *models.Teacher) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure teacher", ensureTeacherSQL, t.UserID, t.FirstName, t.LastName, t.Email, t.Phone)
	t.ID = id
	return created, err
}

// LinkTeacherSubjects inserts missing assignments and returns how many were new.
func (r *AcademicRepository) LinkTeacherSubjects(ctx context.Context, links []models.TeacherSubject) (int, error) {
	const query = `INSERT INTO teacher_subjects (teacher_id, subject_id) VALUES ($1, $2)
        ON CONFLICT ON CONSTRAINT teacher_subjects_teacher_subject_key DO NOTHING`
	created := 0
	for _, link := range links {
		res, err := r.ext(ctx).ExecContext(ctx, query, link.TeacherID, link.SubjectID)
		if err != nil {
			return created, fmt.Errorf("link teacher subject: %w", err)
		}
		if ok, err := affectedOne(res, "link teacher subject"); err != nil {
			return created, err
		} else if ok {
			created++
		}
	}
	return created, nil
}

// LinkStudentSubjects inserts missing grade records and returns how many were
// new. Existing grades are left untouched.
func (r *AcademicRepository) LinkStudentSubjects(ctx context.Context, links []models.StudentSubject) (int, error) {
	const query = `INSERT INTO student_subjects (student_id, subject_id, grade, passed) VALUES ($1, $2, $3, $4)
        ON CONFLICT ON CONSTRAINT student_subjects_student_subject_key DO NOTHING`
	created := 0
	for _, link := range links {
		res, err := r.ext(ctx).ExecContext(ctx, query, link.StudentID, link.SubjectID, link.Grade, link.Passed)
		if err != nil {
			return created, fmt.Errorf("link student subject: %w", err)
		}
		if ok, err := affectedOne(res, "link student subject"); err != nil {
			return created, err
		} else if ok {
			created++
		}
	}
	return created, nil
}

// ListUserRefs returns the user reference held by every student and teacher.
func (r *AcademicRepository) ListUserRefs(ctx context.Context) ([]UserRefRow, error) {
	const query = `SELECT 'students' AS source, id AS row_id, email, user_id FROM students
        UNION ALL
        SELECT 'teachers' AS source, id AS row_id, email, user_id FROM teachers
        ORDER BY source, row_id`
	var refs []UserRefRow
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &refs, query); err != nil {
		return nil, fmt.Errorf("list academic user refs: %w", err)
	}
	return refs, nil
}

// Counts returns the row count of every academic table.
func (r *AcademicRepository) Counts(ctx context.Context) (Counts, error) {
	return countTables(ctx, r.ext(ctx), academicTables)
}

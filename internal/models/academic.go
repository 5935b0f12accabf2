package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Specialty groups careers (e.g. engineering, health sciences).
type Specialty struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Career is a degree programme owning students and subjects.
type Career struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	TotalCycles   int       `db:"total_cycles" json:"totalCycles"`
	DurationYears int       `db:"duration_years" json:"durationYears"`
	SpecialtyID   int64     `db:"specialty_id" json:"specialtyId"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Cycle is a numbered stage of a career curriculum.
type Cycle struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Number    int       `db:"number" json:"number"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Subject is offered by one career in one cycle. AvailableQuota never goes
// below zero; it is decremented only by a successful enrollment and
// incremented only by that enrollment's removal.
type Subject struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Credits        int       `db:"credits" json:"credits"`
	CareerID       int64     `db:"career_id" json:"careerId"`
	CycleID        int64     `db:"cycle_id" json:"cycleId"`
	TotalQuota     int       `db:"total_quota" json:"totalQuota"`
	AvailableQuota int       `db:"available_quota" json:"availableQuota"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// AcademicPeriod is an enrollment window. Only active periods accept new enrollments.
type AcademicPeriod struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Student is an academic-store learner. UserID points into the identity store
// without any constraint; see UserRef.
type Student struct {
	ID        int64     `db:"id" json:"id"`
	UserID    UserRef   `db:"user_id" json:"userId"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CareerID  int64     `db:"career_id" json:"careerId"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Teacher shares the reference discipline of Student.
type Teacher struct {
	ID        int64     `db:"id" json:"id"`
	UserID    UserRef   `db:"user_id" json:"userId"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TeacherSubject assigns a teacher to a subject.
type TeacherSubject struct {
	ID        int64 `db:"id" json:"id"`
	TeacherID int64 `db:"teacher_id" json:"teacherId"`
	SubjectID int64 `db:"subject_id" json:"subjectId"`
}

// StudentSubject records a student's grade history for a subject.
type StudentSubject struct {
	ID        int64               `db:"id" json:"id"`
	StudentID int64               `db:"student_id" json:"studentId"`
	SubjectID int64               `db:"subject_id" json:"subjectId"`
	Grade     decimal.NullDecimal `db:"grade" json:"grade"`
	Passed    bool                `db:"passed" json:"passed"`
}

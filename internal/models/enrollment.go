package models

import "time"

// Enrollment commits a student to a subject for an academic period. At most
// one exists per (StudentID, SubjectID, AcademicPeriodID).
type Enrollment struct {
	ID               int64     `db:"id" json:"id"`
	StudentID        int64     `db:"student_id" json:"studentId"`
	SubjectID        int64     `db:"subject_id" json:"subjectId"`
	AcademicPeriodID int64     `db:"academic_period_id" json:"academicPeriodId"`
	EnrolledAt       time.Time `db:"enrolled_at" json:"enrolledAt"`
}

// EnrollmentDetail enriches Enrollment with the joined rows callers display.
type EnrollmentDetail struct {
	Enrollment
	Student        StudentSummary `db:"student" json:"student"`
	Subject        SubjectSummary `db:"subject" json:"subject"`
	AcademicPeriod PeriodSummary  `db:"academic_period" json:"academicPeriod"`
}

// StudentSummary is the student slice of an enrollment detail.
type StudentSummary struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"firstName"`
	LastName  string `db:"last_name" json:"lastName"`
	Email     string `db:"email" json:"email"`
}

// SubjectSummary is the subject slice of an enrollment detail.
type SubjectSummary struct {
	ID             int64         `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Credits        int           `db:"credits" json:"credits"`
	AvailableQuota int           `db:"available_quota" json:"availableQuota"`
	Career         CareerSummary `db:"career" json:"career"`
	Cycle          CycleSummary  `db:"cycle" json:"cycle"`
}

type CareerSummary struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type CycleSummary struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Number int    `db:"number" json:"number"`
}

type PeriodSummary struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}

// StudentPeriodEnrollments lists a student's enrollments within one period.
type StudentPeriodEnrollments struct {
	Student        StudentSummary     `json:"student"`
	AcademicPeriod PeriodSummary      `json:"academicPeriod"`
	Enrollments    []EnrollmentDetail `json:"enrollments"`
	TotalEnrolled  int                `json:"totalEnrolled"`
}

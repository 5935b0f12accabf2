package models

import "time"

// EnrollmentCountRow is the raw aggregation as returned by the store; COUNT is
// a bigint there.
type EnrollmentCountRow struct {
	StudentName   string `db:"student_name"`
	CareerName    string `db:"career_name"`
	TotalSubjects int64  `db:"total_subjects"`
}

// EnrollmentReportRow is the serialised form of one report line.
type EnrollmentReportRow struct {
	StudentName   string `json:"studentName"`
	CareerName    string `json:"careerName"`
	TotalSubjects int    `json:"totalSubjects"`
}

// EnrollmentReport is ordered by TotalSubjects descending.
type EnrollmentReport struct {
	Report        []EnrollmentReportRow `json:"report"`
	TotalStudents int                   `json:"totalStudents"`
	GeneratedAt   time.Time             `json:"generatedAt"`
}

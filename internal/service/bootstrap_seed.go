package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/academic-records/internal/models"
)

// BootstrapSeed is the canonical content the bootstrap writes. Every entry is
// keyed by its natural key; references between entries use those keys
// instead of ids, which are only known once the rows exist.
type BootstrapSeed struct {
	Permissions []models.Permission
	Roles       []SeedRole
	Users       []SeedUser

	Specialties     []models.Specialty
	Careers         []SeedCareer
	Cycles          int
	Subjects        []SeedSubject
	Periods         []models.AcademicPeriod
	Students        []SeedStudent
	Teachers        []SeedTeacher
	TeacherSubjects []SeedTeacherSubject
	StudentSubjects []SeedStudentSubject

	AuditLogs  []SeedAuditLog
	SystemLogs []models.SystemLog
}

// SeedRole grants Permissions by name; AllPermissions grants every seeded one.
type SeedRole struct {
	Name           string
	Description    string
	Permissions    []string
	AllPermissions bool
}

// SeedUser carries a plaintext password that is hashed only when the user
// is first inserted.
type SeedUser struct {
	Name     string
	Email    string
	Username string
	Password string
	Roles    []string
}

type SeedCareer struct {
	Name          string
	TotalCycles   int
	DurationYears int
	Specialty     string
}

// SeedSubject is keyed by (Career, Cycle, Name).
type SeedSubject struct {
	Name    string
	Credits int
	Career  string
	Cycle   int
	Quota   int
}

// key identifies the subject among seeded subjects.
func (s SeedSubject) key() string {
	return fmt.Sprintf("%s/%d/%s", s.Career, s.Cycle, s.Name)
}

// SeedStudent links to the identity user with the same UserEmail.
type SeedStudent struct {
	UserEmail string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Career    string
}

type SeedTeacher struct {
	UserEmail string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type SeedTeacherSubject struct {
	TeacherEmail string
	Subject      SeedSubjectRef
}

type SeedStudentSubject struct {
	StudentEmail string
	Subject      SeedSubjectRef
	Grade        decimal.NullDecimal
	Passed       bool
}

// SeedSubjectRef points at a seeded subject by its natural key.
type SeedSubjectRef struct {
	Career string
	Cycle  int
	Name   string
}

func (r SeedSubjectRef) key() string {
	return fmt.Sprintf("%s/%d/%s", r.Career, r.Cycle, r.Name)
}

// SeedAuditLog names its actor by email; UserEmail empty means anonymous.
type SeedAuditLog struct {
	UserEmail string
	Action    string
	Resource  string
	Details   map[string]interface{}
	IPAddress string
}

func grade(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// DefaultSeed returns the baseline dataset for a fresh deployment.
func DefaultSeed() BootstrapSeed {
	const systems = "Ingeniería de Sistemas"
	return BootstrapSeed{
		Permissions: []models.Permission{
			{Name: "users:read", Description: "Leer usuarios"},
			{Name: "users:write", Description: "Crear y modificar usuarios"},
			{Name: "users:delete", Description: "Eliminar usuarios"},
			{Name: "roles:manage", Description: "Gestionar roles"},
		},
		Roles: []SeedRole{
			{Name: string(models.RoleAdmin), Description: "Administrador del sistema", AllPermissions: true},
			{Name: string(models.RoleStudent), Description: "Estudiante"},
			{Name: string(models.RoleTeacher), Description: "Docente"},
		},
		Users: []SeedUser{
			{Name: "Admin User", Email: "admin@universidad.edu", Username: "admin", Password: "admin123", Roles: []string{string(models.RoleAdmin)}},
			{Name: "Juan Pérez", Email: "juan.perez@universidad.edu", Username: "jperez", Password: "student123", Roles: []string{string(models.RoleStudent)}},
			{Name: "María García", Email: "maria.garcia@universidad.edu", Username: "mgarcia", Password: "teacher123", Roles: []string{string(models.RoleTeacher)}},
		},
		Specialties: []models.Specialty{
			{Name: "Ingeniería", Description: "Especialidad de Ingeniería"},
			{Name: "Ciencias de la Salud", Description: "Especialidad de Ciencias de la Salud"},
		},
		Careers: []SeedCareer{
			{Name: systems, TotalCycles: 10, DurationYears: 5, Specialty: "Ingeniería"},
			{Name: "Ingeniería Civil", TotalCycles: 10, DurationYears: 5, Specialty: "Ingeniería"},
			{Name: "Medicina", TotalCycles: 12, DurationYears: 6, Specialty: "Ciencias de la Salud"},
		},
		Cycles: 12,
		Subjects: []SeedSubject{
			{Name: "Programación I", Credits: 4, Career: systems, Cycle: 1, Quota: 30},
			{Name: "Matemática Básica", Credits: 5, Career: systems, Cycle: 1, Quota: 30},
			{Name: "Base de Datos", Credits: 4, Career: systems, Cycle: 2, Quota: 30},
		},
		Periods: []models.AcademicPeriod{
			{
				Name:      "2026-II",
				StartDate: time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2026, time.December, 18, 0, 0, 0, 0, time.UTC),
				IsActive:  true,
			},
		},
		Students: []SeedStudent{
			{UserEmail: "juan.perez@universidad.edu", FirstName: "Juan", LastName: "Pérez", Email: "juan.perez@universidad.edu", Phone: "987654321", Career: systems},
		},
		Teachers: []SeedTeacher{
			{UserEmail: "maria.garcia@universidad.edu", FirstName: "María", LastName: "García", Email: "maria.garcia@universidad.edu", Phone: "987654322"},
		},
		TeacherSubjects: []SeedTeacherSubject{
			{TeacherEmail: "maria.garcia@universidad.edu", Subject: SeedSubjectRef{Career: systems, Cycle: 1, Name: "Programación I"}},
		},
		StudentSubjects: []SeedStudentSubject{
			{StudentEmail: "juan.perez@universidad.edu", Subject: SeedSubjectRef{Career: systems, Cycle: 1, Name: "Programación I"}, Grade: grade("18.5"), Passed: true},
			{StudentEmail: "juan.perez@universidad.edu", Subject: SeedSubjectRef{Career: systems, Cycle: 1, Name: "Matemática Básica"}, Grade: grade("16.0"), Passed: true},
		},
		AuditLogs: []SeedAuditLog{
			{UserEmail: "admin@universidad.edu", Action: models.AuditActionLogin, Resource: models.AuditResourceAuth, Details: map[string]interface{}{"method": "JWT", "success": true}, IPAddress: "127.0.0.1"},
			{UserEmail: "admin@universidad.edu", Action: models.AuditActionCreate, Resource: models.AuditResourceUser, Details: map[string]interface{}{"username": "admin", "role": "ADMIN"}, IPAddress: "127.0.0.1"},
		},
		SystemLogs: []models.SystemLog{
			{Level: models.LogLevelInfo, Message: "Sistema iniciado correctamente", Context: "STARTUP"},
			{Level: models.LogLevelInfo, Message: "Base de datos conectada", Context: "DATABASE"},
			{Level: models.LogLevelWarn, Message: "Intento de acceso no autorizado detectado", Context: "SECURITY"},
		},
	}
}

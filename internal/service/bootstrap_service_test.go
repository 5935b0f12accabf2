package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/config"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

// memIdentity stores identity rows keyed by natural key.
type memIdentity struct {
	mu          sync.Mutex
	nextID      int64
	permissions map[string]int64
	roles       map[string]int64
	users       map[string]models.User
	grants      map[[2]int64]bool
	assignments map[[2]int64]bool
}

func newMemIdentity() *memIdentity {
	return &memIdentity{
		permissions: map[string]int64{},
		roles:       map[string]int64{},
		users:       map[string]models.User{},
		grants:      map[[2]int64]bool{},
		assignments: map[[2]int64]bool{},
	}
}

func (m *memIdentity) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memIdentity) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memIdentity) EnsurePermission(ctx context.Context, p *models.Permission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.permissions[p.Name]; ok {
		p.ID = id
		return false, nil
	}
	p.ID = m.id()
	m.permissions[p.Name] = p.ID
	return true, nil
}

func (m *memIdentity) EnsureRole(ctx context.Context, role *models.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.roles[role.Name]; ok {
		role.ID = id
		return false, nil
	}
	role.ID = m.id()
	m.roles[role.Name] = role.ID
	return true, nil
}

func (m *memIdentity) LinkRolePermissions(ctx context.Context, links []models.RolePermission) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, l := range links {
		key := [2]int64{l.RoleID, l.PermissionID}
		if !m.grants[key] {
			m.grants[key] = true
			created++
		}
	}
	return created, nil
}

func (m *memIdentity) FindUserIDByEmail(ctx context.Context, email string) (models.UserRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return u.ID, nil
}

func (m *memIdentity) ExistingUserIDs(ctx context.Context, ids []models.UserRef) (map[models.UserRef]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[models.UserRef]bool{}
	for _, u := range m.users {
		out[u.ID] = true
	}
	return out, nil
}

func (m *memIdentity) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.Email]; ok {
		u.ID = existing.ID
		return false, nil
	}
	u.ID = models.UserRef(m.id())
	m.users[u.Email] = *u
	return true, nil
}

func (m *memIdentity) LinkUserRoles(ctx context.Context, links []models.UserRoleLink) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, l := range links {
		key := [2]int64{l.UserID.Int64(), l.RoleID}
		if !m.assignments[key] {
			m.assignments[key] = true
			created++
		}
	}
	return created, nil
}

// memAcademicSeed stores academic catalogue rows keyed by natural key.
type memAcademicSeed struct {
	mu          sync.Mutex
	nextID      int64
	specialties map[string]int64
	careers     map[string]int64
	cycles      map[int]int64
	subjects    map[string]models.Subject
	periods     map[string]int64
	students    map[string]models.Student
	teachers    map[string]models.Teacher
	teaching    map[[2]int64]bool
	grades      map[[2]int64]bool
}

func newMemAcademicSeed() *memAcademicSeed {
	return &memAcademicSeed{
		specialties: map[string]int64{},
		careers:     map[string]int64{},
		cycles:      map[int]int64{},
		subjects:    map[string]models.Subject{},
		periods:     map[string]int64{},
		students:    map[string]models.Student{},
		teachers:    map[string]models.Teacher{},
		teaching:    map[[2]int64]bool{},
		grades:      map[[2]int64]bool{},
	}
}

func (m *memAcademicSeed) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memAcademicSeed) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func ensureByName[K comparable](m *memAcademicSeed, index map[K]int64, key K, id *int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := index[key]; ok {
		*id = existing
		return false
	}
	*id = m.id()
	index[key] = *id
	return true
}

func (m *memAcademicSeed) EnsureSpecialty(ctx context.Context, s *models.Specialty) (bool, error) {
	return ensureByName(m, m.specialties, s.Name, &s.ID), nil
}

func (m *memAcademicSeed) EnsureCareer(ctx context.Context, c *models.Career) (bool, error) {
	return ensureByName(m, m.careers, c.Name, &c.ID), nil
}

func (m *memAcademicSeed) EnsureCycle(ctx context.Context, c *models.Cycle) (bool, error) {
	return ensureByName(m, m.cycles, c.Number, &c.ID), nil
}

func (m *memAcademicSeed) EnsurePeriod(ctx context.Context, p *models.AcademicPeriod) (bool, error) {
	return ensureByName(m, m.periods, p.Name, &p.ID), nil
}

func (m *memAcademicSeed) EnsureSubject(ctx context.Context, s *models.Subject) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%d/%s", s.CareerID, s.CycleID, s.Name)
	if existing, ok := m.subjects[key]; ok {
		s.ID = existing.ID
		return false, nil
	}
	s.ID = m.id()
	s.AvailableQuota = s.TotalQuota
	m.subjects[key] = *s
	return true, nil
}

func (m *memAcademicSeed) EnsureStudent(ctx context.Context, s *models.Student) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.students[s.Email]; ok {
		s.ID = existing.ID
		return false, nil
	}
	s.ID = m.id()
	m.students[s.Email] = *s
	return true, nil
}

func (m *memAcademicSeed) EnsureTeacher(ctx context.Context, t *models.Teacher) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.teachers[t.Email]; ok {
		t.ID = existing.ID
		return false, nil
	}
	t.ID = m.id()
	m.teachers[t.Email] = *t
	return true, nil
}

func (m *memAcademicSeed) LinkTeacherSubjects(ctx context.Context, links []models.TeacherSubject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, l := range links {
		key := [2]int64{l.TeacherID, l.SubjectID}
		if !m.teaching[key] {
			m.teaching[key] = true
			created++
		}
	}
	return created, nil
}

func (m *memAcademicSeed) LinkStudentSubjects(ctx context.Context, links []models.StudentSubject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, l := range links {
		key := [2]int64{l.StudentID, l.SubjectID}
		if !m.grades[key] {
			m.grades[key] = true
			created++
		}
	}
	return created, nil
}

type memSupport struct {
	mu     sync.Mutex
	audits []models.AuditLog
	system []models.SystemLog
}

func (m *memSupport) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *memSupport) AppendSystemLog(ctx context.Context, entry *models.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.system) + 1)
	m.system = append(m.system, *entry)
	return nil
}

type bootstrapFixture struct {
	identity *memIdentity
	academic *memAcademicSeed
	support  *memSupport
	svc      *BootstrapService
}

func newBootstrapFixture() *bootstrapFixture {
	f := &bootstrapFixture{identity: newMemIdentity(), academic: newMemAcademicSeed(), support: &memSupport{}}
	refs := NewReferenceService(f.identity, nil)
	f.svc = NewBootstrapService(f.identity, f.academic, f.support, refs, nil, BootstrapConfig{BcryptCost: bcrypt.MinCost})
	return f
}

func TestBootstrapServiceCreatesSeed(t *testing.T) {
	f := newBootstrapFixture()

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)

	seed := DefaultSeed()
	assert.Equal(t, len(seed.Users), summary.Created("users"))
	assert.Equal(t, seed.Cycles, summary.Created("cycles"))
	assert.Equal(t, len(seed.Subjects), summary.Created("subjects"))
	assert.Equal(t, len(seed.Permissions), summary.Created("role_permissions"))
	assert.Equal(t, len(seed.StudentSubjects), summary.Created("student_subjects"))
	assert.Len(t, f.support.audits, len(seed.AuditLogs))
	assert.Len(t, f.support.system, len(seed.SystemLogs))

	juan := f.identity.users["juan.perez@universidad.edu"]
	assert.Equal(t, juan.ID, f.academic.students["juan.perez@universidad.edu"].UserID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(juan.Password), []byte("student123")))

	admin := f.identity.users["admin@universidad.edu"]
	require.NotNil(t, f.support.audits[0].UserID)
	assert.Equal(t, admin.ID, *f.support.audits[0].UserID)
	assert.JSONEq(t, `{"method":"JWT","success":true}`, string(f.support.audits[0].Details))

	for _, sub := range f.academic.subjects {
		assert.Equal(t, 30, sub.AvailableQuota, sub.Name)
	}
}

func TestBootstrapServiceIsIdempotent(t *testing.T) {
	f := newBootstrapFixture()
	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	hash := f.identity.users["admin@universidad.edu"].Password
	students := len(f.academic.students)

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	for _, entity := range summary.EntityNames() {
		if entity == "audit_logs" || entity == "system_logs" {
			continue
		}
		assert.Zero(t, summary.Created(entity), entity)
		assert.NotZero(t, summary.Entities[entity].Existing, entity)
	}
	assert.Equal(t, hash, f.identity.users["admin@universidad.edu"].Password)
	assert.Len(t, f.academic.students, students)
	assert.Len(t, f.identity.users, len(DefaultSeed().Users))

	seed := DefaultSeed()
	assert.Len(t, f.support.audits, 2*len(seed.AuditLogs))
	assert.Len(t, f.support.system, 2*len(seed.SystemLogs))
}

func TestBootstrapServiceKeepsForeignRows(t *testing.T) {
	f := newBootstrapFixture()
	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	extra := models.Student{FirstName: "Ana", LastName: "Torres", Email: "ana.torres@universidad.edu"}
	_, err = f.academic.EnsureStudent(context.Background(), &extra)
	require.NoError(t, err)

	_, err = f.svc.Run(context.Background(), config.StoreAcademic)
	require.NoError(t, err)

	assert.Len(t, f.academic.students, 2)
	assert.Equal(t, extra.ID, f.academic.students["ana.torres@universidad.edu"].ID)
}

func TestBootstrapServiceNormalizesSeedEmails(t *testing.T) {
	seed := DefaultSeed()
	for i := range seed.Users {
		seed.Users[i].Email = " " + strings.ToUpper(seed.Users[i].Email[:1]) + seed.Users[i].Email[1:]
	}
	for i := range seed.Students {
		seed.Students[i].UserEmail = strings.ToUpper(seed.Students[i].UserEmail)
	}
	f := newBootstrapFixture()
	f.svc = NewBootstrapService(f.identity, f.academic, f.support, NewReferenceService(f.identity, nil), nil,
		BootstrapConfig{Seed: &seed, BcryptCost: bcrypt.MinCost})

	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, f.identity.users, "juan.perez@universidad.edu")
	for _, st := range f.academic.students {
		assert.True(t, st.UserID.Valid(), st.Email)
	}
}

func TestBootstrapServiceAcademicRequiresIdentity(t *testing.T) {
	f := newBootstrapFixture()

	_, err := f.svc.Run(context.Background(), config.StoreAcademic)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Contains(t, err.Error(), "bootstrap the identity store first")
	assert.Empty(t, f.academic.students)
}

func TestParseStores(t *testing.T) {
	all, err := ParseStores("all")
	require.NoError(t, err)
	assert.Equal(t, []string{config.StoreIdentity, config.StoreAcademic, config.StoreSupport}, all)

	one, err := ParseStores(config.StoreSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{config.StoreSupport}, one)

	_, err = ParseStores("billing")
	assert.Error(t, err)
}

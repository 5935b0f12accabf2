package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
)

type memTxKey struct{}

type memTx struct {
	undo []func()
}

// memAcademic is an in-memory academic store. Mutations inside WithinTx are
// journaled and undone on rollback; ReserveQuota is atomic like the
// conditional UPDATE it stands in for.
type memAcademic struct {
	mu          sync.Mutex
	students    map[int64]models.Student
	subjects    map[int64]models.Subject
	periods     map[int64]models.AcademicPeriod
	enrollments map[int64]models.Enrollment
	nextID      int64

	minQuota  int
	commits   int
	rollbacks int

	// hooks run without the lock held
	beforeReserve func()
	beforeCreate  func()
	createErr     error
}

func newMemAcademic() *memAcademic {
	return &memAcademic{
		students:    map[int64]models.Student{},
		subjects:    map[int64]models.Subject{},
		periods:     map[int64]models.AcademicPeriod{},
		enrollments: map[int64]models.Enrollment{},
		minQuota:    1 << 30,
	}
}

func (m *memAcademic) addStudent(id int64, active bool) {
	m.students[id] = models.Student{ID: id, UserID: models.UserRef(100 + id), FirstName: "Student", LastName: "N", Email: "s@x", CareerID: 1, IsActive: active}
}

func (m *memAcademic) addSubject(id int64, quota int) {
	m.subjects[id] = models.Subject{ID: id, Name: "Base de Datos", Credits: 4, CareerID: 1, CycleID: 2, TotalQuota: quota, AvailableQuota: quota}
}

func (m *memAcademic) addPeriod(id int64, active bool) {
	m.periods[id] = models.AcademicPeriod{ID: id, Name: "2026-II", IsActive: active}
}

func (m *memAcademic) quota(subjectID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subjects[subjectID].AvailableQuota
}

func (m *memAcademic) enrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memAcademic) journal(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *memAcademic) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err == nil {
		err = ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *memAcademic) FindStudent(ctx context.Context, id int64) (*models.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memAcademic) FindSubject(ctx context.Context, id int64) (*models.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memAcademic) FindPeriod(ctx context.Context, id int64) (*models.AcademicPeriod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memAcademic) ExistsEnrollment(ctx context.Context, studentID, subjectID, periodID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.SubjectID == subjectID && e.AcademicPeriodID == periodID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAcademic) ReserveQuota(ctx context.Context, subjectID int64) (bool, error) {
	if m.beforeReserve != nil {
		m.beforeReserve()
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[subjectID]
	if !ok || s.AvailableQuota <= 0 {
		return false, nil
	}
	s.AvailableQuota--
	m.subjects[subjectID] = s
	if s.AvailableQuota < m.minQuota {
		m.minQuota = s.AvailableQuota
	}
	m.journal(ctx, func() {
		s := m.subjects[subjectID]
		s.AvailableQuota++
		m.subjects[subjectID] = s
	})
	return true, nil
}

func (m *memAcademic) ReleaseQuota(ctx context.Context, subjectID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[subjectID]
	if !ok {
		return false, nil
	}
	s.AvailableQuota++
	m.subjects[subjectID] = s
	m.journal(ctx, func() {
		s := m.subjects[subjectID]
		s.AvailableQuota--
		m.subjects[subjectID] = s
	})
	return true, nil
}

func (m *memAcademic) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	if m.createErr != nil {
		return m.createErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == enrollment.StudentID && e.SubjectID == enrollment.SubjectID && e.AcademicPeriodID == enrollment.AcademicPeriodID {
			return repository.ErrDuplicateEnrollment
		}
	}
	m.nextID++
	enrollment.ID = m.nextID
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	m.enrollments[enrollment.ID] = *enrollment
	id := enrollment.ID
	m.journal(ctx, func() { delete(m.enrollments, id) })
	return nil
}

func (m *memAcademic) FindEnrollmentForUpdate(ctx context.Context, id int64) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memAcademic) DeleteEnrollment(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return false, nil
	}
	delete(m.enrollments, id)
	m.journal(ctx, func() { m.enrollments[id] = e })
	return true, nil
}

func (m *memAcademic) detail(e models.Enrollment) models.EnrollmentDetail {
	st := m.students[e.StudentID]
	sub := m.subjects[e.SubjectID]
	p := m.periods[e.AcademicPeriodID]
	return models.EnrollmentDetail{
		Enrollment:     e,
		Student:        models.StudentSummary{ID: st.ID, FirstName: st.FirstName, LastName: st.LastName, Email: st.Email},
		Subject:        models.SubjectSummary{ID: sub.ID, Name: sub.Name, Credits: sub.Credits, AvailableQuota: sub.AvailableQuota},
		AcademicPeriod: models.PeriodSummary{ID: p.ID, Name: p.Name, IsActive: p.IsActive},
	}
}

func (m *memAcademic) FindEnrollmentDetail(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := m.detail(e)
	return &d, nil
}

func (m *memAcademic) ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		out = append(out, m.detail(e))
	}
	return out, nil
}

func (m *memAcademic) ListEnrollmentsByStudentPeriod(ctx context.Context, studentID, periodID int64) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.AcademicPeriodID == periodID {
			out = append(out, m.detail(e))
		}
	}
	return out, nil
}

type fakeInvalidator struct {
	mu       sync.Mutex
	patterns []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	return nil
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patterns)
}

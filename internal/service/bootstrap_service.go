package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/config"
)

type identitySeedStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	EnsurePermission(ctx context.Context, p *models.Permission) (bool, error)
	EnsureRole(ctx context.Context, role *models.Role) (bool, error)
	LinkRolePermissions(ctx context.Context, links []models.RolePermission) (int, error)
	FindUserIDByEmail(ctx context.Context, email string) (models.UserRef, error)
	EnsureUser(ctx context.Context, u *models.User) (bool, error)
	LinkUserRoles(ctx context.Context, links []models.UserRoleLink) (int, error)
}

type academicSeedStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	EnsureSpecialty(ctx context.Context, s *models.Specialty) (bool, error)
	EnsureCareer(ctx context.Context, c *models.Career) (bool, error)
	EnsureCycle(ctx context.Context, c *models.Cycle) (bool, error)
	EnsureSubject(ctx context.Context, s *models.Subject) (bool, error)
	EnsurePeriod(ctx context.Context, p *models.AcademicPeriod) (bool, error)
	EnsureStudent(ctx context.Context, s *models.Student) (bool, error)
	EnsureTeacher(ctx context.Context, t *models.Teacher) (bool, error)
	LinkTeacherSubjects(ctx context.Context, links []models.TeacherSubject) (int, error)
	LinkStudentSubjects(ctx context.Context, links []models.StudentSubject) (int, error)
}

type supportLogWriter interface {
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	AppendSystemLog(ctx context.Context, entry *models.SystemLog) error
}

type userRefResolver interface {
	ResolveUser(ctx context.Context, email string) (models.UserRef, error)
}

// EntityCount tallies one entity kind across a bootstrap run. For the
// append-only support logs Existing is always zero.
type EntityCount struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// BootstrapSummary reports what a run wrote.
type BootstrapSummary struct {
	RunID    string                  `json:"runId"`
	Stores   []string                `json:"stores"`
	Entities map[string]*EntityCount `json:"entities"`
	Duration time.Duration           `json:"duration"`

	mu sync.Mutex
}

func (s *BootstrapSummary) record(entity string, created bool) {
	if created {
		s.add(entity, 1, 0)
	} else {
		s.add(entity, 0, 1)
	}
}

func (s *BootstrapSummary) add(entity string, created, existing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Entities[entity]
	if !ok {
		c = &EntityCount{}
		s.Entities[entity] = c
	}
	c.Created += created
	c.Existing += existing
}

// Created returns the number of rows inserted for entity.
func (s *BootstrapSummary) Created(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.Entities[entity]; ok {
		return c.Created
	}
	return 0
}

// EntityNames returns the tallied entities in alphabetical order.
func (s *BootstrapSummary) EntityNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.Entities))
	for name := range s.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BootstrapConfig tunes the bootstrap run.
type BootstrapConfig struct {
	Seed       *BootstrapSeed
	BcryptCost int
}

// BootstrapService brings each store to the canonical seed state. Identity
// and academic rows are upserted by natural key, so repeated runs converge on
// one row set and never remove rows added by others. Support logs are
// appended on every run.
type BootstrapService struct {
	identity identitySeedStore
	academic academicSeedStore
	support  supportLogWriter
	refs     userRefResolver
	seed     BootstrapSeed
	cost     int
	logger   *zap.Logger
}

// NewBootstrapService constructs BootstrapService.
func NewBootstrapService(identity identitySeedStore, academic academicSeedStore, support supportLogWriter, refs userRefResolver, logger *zap.Logger, cfg BootstrapConfig) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := DefaultSeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &BootstrapService{identity: identity, academic: academic, support: support, refs: refs, seed: seed, cost: cfg.BcryptCost, logger: logger}
}

// ParseStores expands a --store value into the stores to bootstrap, in order.
func ParseStores(value string) ([]string, error) {
	switch value {
	case "", "all":
		return []string{config.StoreIdentity, config.StoreAcademic, config.StoreSupport}, nil
	case config.StoreIdentity, config.StoreAcademic, config.StoreSupport:
		return []string{value}, nil
	}
	return nil, fmt.Errorf("unknown store %q: want identity, academic, support or all", value)
}

// Run bootstraps the selected stores. Identity always goes first because
// academic and support rows copy its user ids; academic and support then run
// concurrently. Selecting academic or support alone requires a previously
// bootstrapped identity store.
func (s *BootstrapService) Run(ctx context.Context, stores ...string) (*BootstrapSummary, error) {
	if len(stores) == 0 {
		stores, _ = ParseStores("all")
	}
	selected := make(map[string]bool, len(stores))
	for _, store := range stores {
		selected[store] = true
	}

	start := time.Now()
	summary := &BootstrapSummary{RunID: uuid.NewString(), Stores: stores, Entities: map[string]*EntityCount{}}
	logger := s.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("bootstrap started", zap.Strings("stores", stores))

	if selected[config.StoreIdentity] {
		if err := s.seedIdentity(ctx, summary); err != nil {
			return nil, fmt.Errorf("bootstrap identity store: %w", err)
		}
		logger.Info("identity store bootstrapped")
	}

	g, gctx := errgroup.WithContext(ctx)
	if selected[config.StoreAcademic] {
		g.Go(func() error {
			if err := s.seedAcademic(gctx, summary); err != nil {
				return fmt.Errorf("bootstrap academic store: %w", err)
			}
			logger.Info("academic store bootstrapped")
			return nil
		})
	}
	if selected[config.StoreSupport] {
		g.Go(func() error {
			if err := s.seedSupport(gctx, summary); err != nil {
				return fmt.Errorf("bootstrap support store: %w", err)
			}
			logger.Info("support store bootstrapped")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	logger.Info("bootstrap finished", zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *BootstrapService) seedIdentity(ctx context.Context, sum *BootstrapSummary) error {
	return s.identity.WithinTx(ctx, func(ctx context.Context) error {
		permissions := make(map[string]int64, len(s.seed.Permissions))
		allPermissions := make([]string, 0, len(s.seed.Permissions))
		for _, seed := range s.seed.Permissions {
			p := seed
			created, err := s.identity.EnsurePermission(ctx, &p)
			if err != nil {
				return err
			}
			sum.record("permissions", created)
			permissions[p.Name] = p.ID
			allPermissions = append(allPermissions, p.Name)
		}

		roles := make(map[string]int64, len(s.seed.Roles))
		var grants []models.RolePermission
		for _, seed := range s.seed.Roles {
			role := models.Role{Name: seed.Name, Description: seed.Description}
			created, err := s.identity.EnsureRole(ctx, &role)
			if err != nil {
				return err
			}
			sum.record("roles", created)
			roles[role.Name] = role.ID

			names := seed.Permissions
			if seed.AllPermissions {
				names = allPermissions
			}
			for _, name := range names {
				permissionID, ok := permissions[name]
				if !ok {
					return fmt.Errorf("role %s grants unknown permission %s", seed.Name, name)
				}
				grants = append(grants, models.RolePermission{RoleID: role.ID, PermissionID: permissionID})
			}
		}
		if err := s.link(sum, "role_permissions", len(grants), func() (int, error) {
			return s.identity.LinkRolePermissions(ctx, grants)
		}); err != nil {
			return err
		}

		var assignments []models.UserRoleLink
		for _, seed := range s.seed.Users {
			ref, err := s.ensureUser(ctx, sum, seed)
			if err != nil {
				return err
			}
			for _, name := range seed.Roles {
				roleID, ok := roles[name]
				if !ok {
					return fmt.Errorf("user %s has unknown role %s", seed.Email, name)
				}
				assignments = append(assignments, models.UserRoleLink{UserID: ref, RoleID: roleID})
			}
		}
		return s.link(sum, "user_roles", len(assignments), func() (int, error) {
			return s.identity.LinkUserRoles(ctx, assignments)
		})
	})
}

// ensureUser hashes the seed password only when the user does not exist yet.
func (s *BootstrapService) ensureUser(ctx context.Context, sum *BootstrapSummary, seed SeedUser) (models.UserRef, error) {
	seed.Email = normalizeEmail(seed.Email)
	ref, err := s.identity.FindUserIDByEmail(ctx, seed.Email)
	if err == nil {
		sum.record("users", false)
		return ref, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find user %s: %w", seed.Email, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password for %s: %w", seed.Email, err)
	}
	user := models.User{Name: seed.Name, Email: seed.Email, Username: seed.Username, Password: string(hash)}
	created, err := s.identity.EnsureUser(ctx, &user)
	if err != nil {
		return 0, err
	}
	sum.record("users", created)
	return user.ID, nil
}

func (s *BootstrapService) seedAcademic(ctx context.Context, sum *BootstrapSummary) error {
	// Resolve identity ids before opening the academic transaction: the
	// reads hit another database and must not hold academic locks.
	userRefs := make(map[string]models.UserRef)
	for _, st := range s.seed.Students {
		if err := s.resolveInto(ctx, userRefs, st.UserEmail); err != nil {
			return err
		}
	}
	for _, t := range s.seed.Teachers {
		if err := s.resolveInto(ctx, userRefs, t.UserEmail); err != nil {
			return err
		}
	}

	return s.academic.WithinTx(ctx, func(ctx context.Context) error {
		specialties := make(map[string]int64)
		for _, seed := range s.seed.Specialties {
			sp := seed
			created, err := s.academic.EnsureSpecialty(ctx, &sp)
			if err != nil {
				return err
			}
			sum.record("specialties", created)
			specialties[sp.Name] = sp.ID
		}

		careers := make(map[string]int64)
		for _, seed := range s.seed.Careers {
			specialtyID, ok := specialties[seed.Specialty]
			if !ok {
				return fmt.Errorf("career %s has unknown specialty %s", seed.Name, seed.Specialty)
			}
			c := models.Career{Name: seed.Name, TotalCycles: seed.TotalCycles, DurationYears: seed.DurationYears, SpecialtyID: specialtyID}
			created, err := s.academic.EnsureCareer(ctx, &c)
			if err != nil {
				return err
			}
			sum.record("careers", created)
			careers[c.Name] = c.ID
		}

		cycles := make(map[int]int64, s.seed.Cycles)
		for n := 1; n <= s.seed.Cycles; n++ {
			cy := models.Cycle{Name: fmt.Sprintf("Ciclo %d", n), Number: n}
			created, err := s.academic.EnsureCycle(ctx, &cy)
			if err != nil {
				return err
			}
			sum.record("cycles", created)
			cycles[n] = cy.ID
		}

		subjects := make(map[string]int64)
		for _, seed := range s.seed.Subjects {
			careerID, ok := careers[seed.Career]
			if !ok {
				return fmt.Errorf("subject %s has unknown career %s", seed.Name, seed.Career)
			}
			cycleID, ok := cycles[seed.Cycle]
			if !ok {
				return fmt.Errorf("subject %s has unknown cycle %d", seed.Name, seed.Cycle)
			}
			sub := models.Subject{Name: seed.Name, Credits: seed.Credits, CareerID: careerID, CycleID: cycleID, TotalQuota: seed.Quota}
			created, err := s.academic.EnsureSubject(ctx, &sub)
			if err != nil {
				return err
			}
			sum.record("subjects", created)
			subjects[seed.key()] = sub.ID
		}

		for _, seed := range s.seed.Periods {
			p := seed
			created, err := s.academic.EnsurePeriod(ctx, &p)
			if err != nil {
				return err
			}
			sum.record("academic_periods", created)
		}

		students := make(map[string]int64)
		for _, seed := range s.seed.Students {
			careerID, ok := careers[seed.Career]
			if !ok {
				return fmt.Errorf("student %s has unknown career %s", seed.Email, seed.Career)
			}
			st := models.Student{UserID: userRefs[seed.UserEmail], FirstName: seed.FirstName, LastName: seed.LastName, Email: seed.Email, Phone: seed.Phone, CareerID: careerID}
			created, err := s.academic.EnsureStudent(ctx, &st)
			if err != nil {
				return err
			}
			sum.record("students", created)
			students[st.Email] = st.ID
		}

		teachers := make(map[string]int64)
		for _, seed := range s.seed.Teachers {
			t := models.Teacher{UserID: userRefs[seed.UserEmail], FirstName: seed.FirstName, LastName: seed.LastName, Email: seed.Email, Phone: seed.Phone}
			created, err := s.academic.EnsureTeacher(ctx, &t)
			if err != nil {
				return err
			}
			sum.record("teachers", created)
			teachers[t.Email] = t.ID
		}

		assignments := make([]models.TeacherSubject, 0, len(s.seed.TeacherSubjects))
		for _, seed := range s.seed.TeacherSubjects {
			teacherID, ok := teachers[seed.TeacherEmail]
			if !ok {
				return fmt.Errorf("assignment references unknown teacher %s", seed.TeacherEmail)
			}
			subjectID, ok := subjects[seed.Subject.key()]
			if !ok {
				return fmt.Errorf("assignment references unknown subject %s", seed.Subject.key())
			}
			assignments = append(assignments, models.TeacherSubject{TeacherID: teacherID, SubjectID: subjectID})
		}
		if err := s.link(sum, "teacher_subjects", len(assignments), func() (int, error) {
			return s.academic.LinkTeacherSubjects(ctx, assignments)
		}); err != nil {
			return err
		}

		records := make([]models.StudentSubject, 0, len(s.seed.StudentSubjects))
		for _, seed := range s.seed.StudentSubjects {
			studentID, ok := students[seed.StudentEmail]
			if !ok {
				return fmt.Errorf("grade references unknown student %s", seed.StudentEmail)
			}
			subjectID, ok := subjects[seed.Subject.key()]
			if !ok {
				return fmt.Errorf("grade references unknown subject %s", seed.Subject.key())
			}
			records = append(records, models.StudentSubject{StudentID: studentID, SubjectID: subjectID, Grade: seed.Grade, Passed: seed.Passed})
		}
		return s.link(sum, "student_subjects", len(records), func() (int, error) {
			return s.academic.LinkStudentSubjects(ctx, records)
		})
	})
}

func (s *BootstrapService) seedSupport(ctx context.Context, sum *BootstrapSummary) error {
	for _, seed := range s.seed.AuditLogs {
		entry := models.AuditLog{Action: seed.Action, Resource: seed.Resource, IPAddress: seed.IPAddress}
		if seed.UserEmail != "" {
			ref, err := s.refs.ResolveUser(ctx, seed.UserEmail)
			if err != nil {
				return fmt.Errorf("resolve audit actor %s: %w", seed.UserEmail, err)
			}
			entry.UserID = &ref
		}
		details, err := json.Marshal(seed.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		entry.Details = details
		if err := s.support.AppendAuditLog(ctx, &entry); err != nil {
			return err
		}
		sum.record("audit_logs", true)
	}
	for _, seed := range s.seed.SystemLogs {
		entry := seed
		if err := s.support.AppendSystemLog(ctx, &entry); err != nil {
			return err
		}
		sum.record("system_logs", true)
	}
	return nil
}

func (s *BootstrapService) resolveInto(ctx context.Context, refs map[string]models.UserRef, email string) error {
	if _, ok := refs[email]; ok {
		return nil
	}
	ref, err := s.refs.ResolveUser(ctx, email)
	if err != nil {
		return fmt.Errorf("resolve user %s (bootstrap the identity store first): %w", email, err)
	}
	refs[email] = ref
	return nil
}

func (s *BootstrapService) link(sum *BootstrapSummary, entity string, total int, insert func() (int, error)) error {
	if total == 0 {
		return nil
	}
	created, err := insert()
	if err != nil {
		return err
	}
	sum.add(entity, created, total-created)
	return nil
}

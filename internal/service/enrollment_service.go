package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	"github.com/noah-isme/academic-records/pkg/database"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

const (
	opEnroll   = "enroll"
	opUnenroll = "unenroll"
)

type academicStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindStudent(ctx context.Context, id int64) (*models.Student, error)
	FindSubject(ctx context.Context, id int64) (*models.Subject, error)
	FindPeriod(ctx context.Context, id int64) (*models.AcademicPeriod, error)
	ExistsEnrollment(ctx context.Context, studentID, subjectID, periodID int64) (bool, error)
	ReserveQuota(ctx context.Context, subjectID int64) (bool, error)
	ReleaseQuota(ctx context.Context, subjectID int64) (bool, error)
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	FindEnrollmentForUpdate(ctx context.Context, id int64) (*models.Enrollment, error)
	DeleteEnrollment(ctx context.Context, id int64) (bool, error)
	FindEnrollmentDetail(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
	ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListEnrollmentsByStudentPeriod(ctx context.Context, studentID, periodID int64) ([]models.EnrollmentDetail, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// EnrollRequest describes an enrollment attempt. EnrolledAt defaults to the
// store clock.
type EnrollRequest struct {
	StudentID        int64      `json:"studentId" validate:"required,gt=0"`
	SubjectID        int64      `json:"subjectId" validate:"required,gt=0"`
	AcademicPeriodID int64      `json:"academicPeriodId" validate:"required,gt=0"`
	EnrolledAt       *time.Time `json:"enrolledAt,omitempty"`
}

// EnrollmentServiceConfig bounds engine transactions.
type EnrollmentServiceConfig struct {
	TxTimeout time.Duration
}

// EnrollmentService is the quota-safe enrollment engine. Every mutation runs
// inside a single academic-store transaction; the conditional quota
// decrement is the only capacity check that counts.
type EnrollmentService struct {
	repo      academicStore
	reports   reportInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EnrollmentServiceConfig
}

// NewEnrollmentService constructs EnrollmentService. reports and metrics are optional.
func NewEnrollmentService(repo academicStore, reports reportInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentServiceConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, reports: reports, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Enroll reserves one seat of the subject for the student in the period and
// records the enrollment. Either both happen or neither does.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	start := time.Now()
	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var detail *models.EnrollmentDetail
	err := s.repo.WithinTx(txCtx, func(ctx context.Context) error {
		student, err := s.repo.FindStudent(ctx, req.StudentID)
		if err != nil {
			return lookupError(err, "student not found", "load student")
		}
		if !student.IsActive {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is not active")
		}

		subject, err := s.repo.FindSubject(ctx, req.SubjectID)
		if err != nil {
			return lookupError(err, "subject not found", "load subject")
		}

		period, err := s.repo.FindPeriod(ctx, req.AcademicPeriodID)
		if err != nil {
			return lookupError(err, "academic period not found", "load academic period")
		}
		if !period.IsActive {
			return appErrors.Clone(appErrors.ErrInvalidState, "academic period is not active")
		}

		if subject.AvailableQuota <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityExhausted, fmt.Sprintf("no available quota for subject %q", subject.Name))
		}

		exists, err := s.repo.ExistsEnrollment(ctx, student.ID, subject.ID, period.ID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyEnrolled()
		}

		reserved, err := s.repo.ReserveQuota(ctx, subject.ID)
		if err != nil {
			return err
		}
		if !reserved {
			return appErrors.Clone(appErrors.ErrCapacityExhausted, fmt.Sprintf("no available quota for subject %q", subject.Name))
		}

		enrollment := &models.Enrollment{StudentID: student.ID, SubjectID: subject.ID, AcademicPeriodID: period.ID}
		if req.EnrolledAt != nil {
			enrollment.EnrolledAt = req.EnrolledAt.UTC()
		}
		if err := s.repo.CreateEnrollment(ctx, enrollment); err != nil {
			if errors.Is(err, repository.ErrDuplicateEnrollment) {
				return alreadyEnrolled()
			}
			return err
		}

		detail, err = s.repo.FindEnrollmentDetail(ctx, enrollment.ID)
		if err != nil {
			return fmt.Errorf("load enrollment detail: %w", err)
		}
		return nil
	})
	err = classify(err, "failed to enroll student")
	s.observe(opEnroll, OutcomeEnrolled, err, start)
	if err != nil {
		s.logFailure(opEnroll, err, zap.Int64("student_id", req.StudentID), zap.Int64("subject_id", req.SubjectID), zap.Int64("academic_period_id", req.AcademicPeriodID))
		return nil, err
	}

	s.logger.Info("student enrolled",
		zap.Int64("enrollment_id", detail.ID),
		zap.Int64("student_id", detail.StudentID),
		zap.Int64("subject_id", detail.SubjectID),
		zap.Int("available_quota", detail.Subject.AvailableQuota))
	s.invalidateReports(ctx)
	return detail, nil
}

// Unenroll removes the enrollment and gives its seat back in one transaction.
// The row is locked before deletion so concurrent removals of the same
// enrollment release the seat once.
func (s *EnrollmentService) Unenroll(ctx context.Context, id int64) (*models.Enrollment, error) {
	start := time.Now()
	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var removed *models.Enrollment
	err := s.repo.WithinTx(txCtx, func(ctx context.Context) error {
		enrollment, err := s.repo.FindEnrollmentForUpdate(ctx, id)
		if err != nil {
			return lookupError(err, "enrollment not found", "load enrollment")
		}
		deleted, err := s.repo.DeleteEnrollment(ctx, enrollment.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		released, err := s.repo.ReleaseQuota(ctx, enrollment.SubjectID)
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("release quota: subject %d not found", enrollment.SubjectID)
		}
		removed = enrollment
		return nil
	})
	err = classify(err, "failed to remove enrollment")
	s.observe(opUnenroll, OutcomeUnenrolled, err, start)
	if err != nil {
		s.logFailure(opUnenroll, err, zap.Int64("enrollment_id", id))
		return nil, err
	}

	s.logger.Info("enrollment removed", zap.Int64("enrollment_id", removed.ID), zap.Int64("subject_id", removed.SubjectID))
	s.invalidateReports(ctx)
	return removed, nil
}

// Get returns one enrollment with its joined detail.
func (s *EnrollmentService) Get(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindEnrollmentDetail(ctx, id)
	if err != nil {
		return nil, classify(lookupError(err, "enrollment not found", "load enrollment"), "failed to load enrollment")
	}
	return detail, nil
}

// List returns every enrollment, newest first.
func (s *EnrollmentService) List(ctx context.Context) ([]models.EnrollmentDetail, error) {
	details, err := s.repo.ListEnrollments(ctx)
	if err != nil {
		return nil, classify(err, "failed to list enrollments")
	}
	if details == nil {
		details = []models.EnrollmentDetail{}
	}
	return details, nil
}

// ListByStudentAndPeriod returns the student's enrollments for one period.
func (s *EnrollmentService) ListByStudentAndPeriod(ctx context.Context, studentID, periodID int64) (*models.StudentPeriodEnrollments, error) {
	student, err := s.repo.FindStudent(ctx, studentID)
	if err != nil {
		return nil, classify(lookupError(err, "student not found", "load student"), "failed to load student")
	}
	period, err := s.repo.FindPeriod(ctx, periodID)
	if err != nil {
		return nil, classify(lookupError(err, "academic period not found", "load academic period"), "failed to load academic period")
	}
	details, err := s.repo.ListEnrollmentsByStudentPeriod(ctx, studentID, periodID)
	if err != nil {
		return nil, classify(err, "failed to list student enrollments")
	}
	if details == nil {
		details = []models.EnrollmentDetail{}
	}
	return &models.StudentPeriodEnrollments{
		Student:        models.StudentSummary{ID: student.ID, FirstName: student.FirstName, LastName: student.LastName, Email: student.Email},
		AcademicPeriod: models.PeriodSummary{ID: period.ID, Name: period.Name, IsActive: period.IsActive},
		Enrollments:    details,
		TotalEnrolled:  len(details),
	}, nil
}

func (s *EnrollmentService) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.TxTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *EnrollmentService) invalidateReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Invalidate(ctx, reportCachePattern); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func (s *EnrollmentService) observe(op, success string, err error, start time.Time) {
	s.metrics.ObserveEnrollment(op, outcomeOf(err, success), time.Since(start))
}

func (s *EnrollmentService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	switch {
	case appErrors.IsBusiness(err):
		s.logger.Info("enrollment rejected", fields...)
	case appErrors.IsRetryable(err):
		s.logger.Warn("enrollment store unavailable", fields...)
	default:
		s.logger.Error("enrollment failed", fields...)
	}
}

func alreadyEnrolled() error {
	return appErrors.Clone(appErrors.ErrAlreadyExists, "student already enrolled in subject for this academic period")
}

// lookupError maps sql.ErrNoRows to NotFound and wraps anything else.
func lookupError(err error, notFound, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classify keeps typed errors as they are and splits everything else into
// retryable store failures and internal errors.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if database.IsRetryable(err) {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func outcomeOf(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, appErrors.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, appErrors.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, appErrors.ErrCapacityExhausted):
		return OutcomeCapacityExhausted
	case errors.Is(err, appErrors.ErrAlreadyExists):
		return OutcomeAlreadyExists
	case appErrors.IsRetryable(err):
		return OutcomeUnavailable
	default:
		return OutcomeInternal
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
	"github.com/noah-isme/academic-records/pkg/export"
)

const (
	reportCacheKey     = "reports:enrollments"
	reportCachePattern = "reports:*"

	// maxSafeInteger is the largest integer every JSON consumer decodes exactly.
	maxSafeInteger = 1<<53 - 1
)

// ErrCountOutOfRange is returned when an aggregated count cannot be
// represented exactly after narrowing.
var ErrCountOutOfRange = errors.New("count out of range")

type enrollmentCountSource interface {
	EnrollmentCounts(ctx context.Context) ([]models.EnrollmentCountRow, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Generation() uint64
	SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, gen uint64) (bool, error)
}

// ReportFile is a rendered export ready to be streamed.
type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ReportService aggregates enrollments per student. It only reads.
type ReportService struct {
	source    enrollmentCountSource
	cache     reportCache
	exporters map[string]export.Exporter
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service. cache may be nil.
func NewReportService(source enrollmentCountSource, cache reportCache, ttl time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		source: source,
		cache:  cache,
		exporters: map[string]export.Exporter{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// EnrollmentReport lists students with at least one enrollment, ordered by
// enrollment count descending. A report built while an enrollment commit
// invalidated the cache is returned but not cached.
func (s *ReportService) EnrollmentReport(ctx context.Context) (*models.EnrollmentReport, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation()
		var cached models.EnrollmentReport
		hit, err := s.cache.Get(ctx, reportCacheKey, &cached)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	counts, err := s.source.EnrollmentCounts(ctx)
	if err != nil {
		return nil, classify(err, "failed to build enrollment report")
	}

	rows := make([]models.EnrollmentReportRow, 0, len(counts))
	for _, c := range counts {
		total, err := narrowCount(c.TotalSubjects)
		if err != nil {
			s.logger.Error("enrollment count not representable", zap.String("student", c.StudentName), zap.Int64("count", c.TotalSubjects))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build enrollment report")
		}
		rows = append(rows, models.EnrollmentReportRow{
			StudentName:   c.StudentName,
			CareerName:    c.CareerName,
			TotalSubjects: total,
		})
	}

	report := &models.EnrollmentReport{
		Report:        rows,
		TotalStudents: len(rows),
		GeneratedAt:   s.now().UTC(),
	}

	if s.cache != nil {
		if _, err := s.cache.SetIfGeneration(ctx, reportCacheKey, report, s.ttl, gen); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}
	return report, nil
}

// Formats lists the export formats Export accepts.
func (s *ReportService) Formats() []string {
	return []string{"csv", "pdf"}
}

// Export renders the enrollment report as csv or pdf.
func (s *ReportService) Export(ctx context.Context, format string) (*ReportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	report, err := s.EnrollmentReport(ctx)
	if err != nil {
		return nil, err
	}

	content, err := exporter.Render(ReportDataset(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render enrollment report")
	}
	return &ReportFile{
		Filename:    fmt.Sprintf("enrollment-report-%s.%s", report.GeneratedAt.Format("20060102-150405"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Content:     content,
	}, nil
}

// ReportDataset converts the report into a tabular dataset.
func ReportDataset(report *models.EnrollmentReport) export.Dataset {
	rows := make([][]string, len(report.Report))
	for i, r := range report.Report {
		rows[i] = []string{r.StudentName, r.CareerName, strconv.Itoa(r.TotalSubjects)}
	}
	return export.Dataset{
		Title: "Enrollment report",
		Columns: []export.Column{
			{Header: "Student", Weight: 3},
			{Header: "Career", Weight: 3},
			{Header: "Total subjects", Align: "R", Weight: 1.5},
		},
		Rows:   rows,
		Footer: fmt.Sprintf("%d students, generated %s", report.TotalStudents, report.GeneratedAt.Format(time.RFC3339)),
	}
}

// narrowCount converts a store bigint count to int, rejecting values that
// would lose precision in the process or in JSON consumers.
func narrowCount(v int64) (int, error) {
	if v < 0 || v > maxSafeInteger || v > int64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d", ErrCountOutOfRange, v)
	}
	return int(v), nil
}

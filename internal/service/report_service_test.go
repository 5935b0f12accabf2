package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type fakeCountSource struct {
	rows  []models.EnrollmentCountRow
	err   error
	calls int
}

func (f *fakeCountSource) EnrollmentCounts(ctx context.Context) ([]models.EnrollmentCountRow, error) {
	f.calls++
	return f.rows, f.err
}

type mapReportCache struct {
	entries map[string]models.EnrollmentReport
}

func (c *mapReportCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*dest.(*models.EnrollmentReport) = v
	return true, nil
}

func (c *mapReportCache) Generation() uint64 { return 0 }

func (c *mapReportCache) SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, gen uint64) (bool, error) {
	c.entries[key] = *value.(*models.EnrollmentReport)
	return true, nil
}

// gatedCountSource blocks inside EnrollmentCounts until released, holding the
// rows it read on entry.
type gatedCountSource struct {
	mu      sync.Mutex
	rows    []models.EnrollmentCountRow
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCountSource) EnrollmentCounts(ctx context.Context) ([]models.EnrollmentCountRow, error) {
	g.mu.Lock()
	rows, gated := g.rows, g.gated
	g.gated = false
	g.mu.Unlock()
	if gated {
		close(g.entered)
		<-g.release
	}
	return rows, nil
}

func (g *gatedCountSource) setRows(rows []models.EnrollmentCountRow) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = rows
}

func TestReportServiceEnrollmentReport(t *testing.T) {
	source := &fakeCountSource{rows: []models.EnrollmentCountRow{
		{StudentName: "Juan Pérez", CareerName: "Ingeniería de Sistemas", TotalSubjects: 3},
		{StudentName: "Ana Torres", CareerName: "Medicina", TotalSubjects: 1},
	}}
	svc := NewReportService(source, nil, time.Minute, nil)
	fixed := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	report, err := svc.EnrollmentReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalStudents)
	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, models.EnrollmentReportRow{StudentName: "Juan Pérez", CareerName: "Ingeniería de Sistemas", TotalSubjects: 3}, report.Report[0])
}

func TestReportServiceEmptyReportSerialisesAsList(t *testing.T) {
	svc := NewReportService(&fakeCountSource{}, nil, time.Minute, nil)

	report, err := svc.EnrollmentReport(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report.Report)
	assert.Zero(t, report.TotalStudents)
}

func TestReportServiceRejectsUnrepresentableCount(t *testing.T) {
	source := &fakeCountSource{rows: []models.EnrollmentCountRow{
		{StudentName: "Overflow", CareerName: "X", TotalSubjects: maxSafeInteger + 1},
	}}
	svc := NewReportService(source, nil, time.Minute, nil)

	_, err := svc.EnrollmentReport(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCountOutOfRange)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestNarrowCount(t *testing.T) {
	v, err := narrowCount(maxSafeInteger)
	require.NoError(t, err)
	assert.Equal(t, maxSafeInteger, v)

	for _, bad := range []int64{-1, maxSafeInteger + 1} {
		_, err := narrowCount(bad)
		assert.ErrorIs(t, err, ErrCountOutOfRange, bad)
	}
}

func TestReportServiceUsesCache(t *testing.T) {
	source := &fakeCountSource{rows: []models.EnrollmentCountRow{{StudentName: "A", CareerName: "B", TotalSubjects: 2}}}
	cache := &mapReportCache{entries: map[string]models.EnrollmentReport{}}
	svc := NewReportService(source, cache, time.Minute, nil)

	first, err := svc.EnrollmentReport(context.Background())
	require.NoError(t, err)
	second, err := svc.EnrollmentReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first.Report, second.Report)
}

func TestReportServiceDoesNotCacheReportRacingInvalidation(t *testing.T) {
	row := func(n int64) []models.EnrollmentCountRow {
		return []models.EnrollmentCountRow{{StudentName: "Juan Pérez", CareerName: "Ingeniería de Sistemas", TotalSubjects: n}}
	}
	source := &gatedCountSource{rows: row(1), gated: true, entered: make(chan struct{}), release: make(chan struct{})}
	cache := NewCacheService(&memCacheRepo{entries: map[string][]byte{}}, nil, time.Minute, nil, true)
	svc := NewReportService(source, cache, time.Minute, nil)

	done := make(chan *models.EnrollmentReport, 1)
	go func() {
		report, err := svc.EnrollmentReport(context.Background())
		assert.NoError(t, err)
		done <- report
	}()

	<-source.entered
	source.setRows(row(2))
	require.NoError(t, cache.Invalidate(context.Background(), reportCachePattern))
	close(source.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, 1, stale.Report[0].TotalSubjects)

	fresh, err := svc.EnrollmentReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Report[0].TotalSubjects)
}

func TestReportServiceStoreFailure(t *testing.T) {
	svc := NewReportService(&fakeCountSource{err: errors.New("syntax error")}, nil, time.Minute, nil)

	_, err := svc.EnrollmentReport(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestReportServiceExport(t *testing.T) {
	source := &fakeCountSource{rows: []models.EnrollmentCountRow{{StudentName: "Juan Pérez", CareerName: "Ingeniería de Sistemas", TotalSubjects: 3}}}
	svc := NewReportService(source, nil, time.Minute, nil)

	file, err := svc.Export(context.Background(), "CSV")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Contains(t, file.Filename, ".csv")

	records, err := csv.NewReader(bytes.NewReader(file.Content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Juan Pérez", "Ingeniería de Sistemas", "3"}, records[1])

	pdf, err := svc.Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, bytes.HasPrefix(pdf.Content, []byte("%PDF")))

	_, err = svc.Export(context.Background(), "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

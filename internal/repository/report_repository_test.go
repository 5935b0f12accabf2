package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepositoryEnrollmentCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"student_name", "career_name", "total_subjects"}).
		AddRow("Juan Pérez", "Ingeniería de Sistemas", int64(3)).
		AddRow("Ana Torres", "Medicina", int64(1))
	mock.ExpectQuery(regexp.QuoteMeta("HAVING COUNT(e.id) > 0")).WillReturnRows(rows)

	result, err := repo.EnrollmentCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, int64(3), result[0].TotalSubjects)
	assert.Equal(t, "Medicina", result[1].CareerName)
	require.NoError(t, mock.ExpectationsWereMet())
}

package access

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleanupExpiredGrants(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM referral.hospital_patient_access")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	svc := NewCleanupService(sqlDB, 90*24*time.Hour, zap.NewNop())
	deleted, err := svc.CleanupExpiredGrants(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountExpiredGrants(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM referral.hospital_patient_access")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := NewCleanupService(sqlDB, time.Hour, zap.NewNop()).CountExpiredGrants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestCleanupCutoff(t *testing.T) {
	svc := NewCleanupService(nil, 48*time.Hour, zap.NewNop())
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), svc.cutoff(now))
}

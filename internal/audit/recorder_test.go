package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const patientID = "33333333-3333-3333-3333-333333333333"

func TestRecord_WritesEntry(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO referral.patient_access_log")).
		WithArgs(patientID, sqlmock.AnyArg(), "user-1", ActionReadPluginData, sqlmock.AnyArg(), `{"source":"api"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := NewRecorder(sqlDB, zap.NewNop())
	rec.Record(context.Background(), Entry{
		PatientID:  patientID,
		UserID:     "user-1",
		Action:     ActionReadPluginData,
		PluginName: "allergy-tracker",
		Context:    map[string]interface{}{"source": "api"},
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_FailureIsSwallowed(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO referral.patient_access_log")).
		WillReturnError(errors.New("disk full"))

	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(sqlDB, zap.New(core))

	rec.Record(context.Background(), Entry{PatientID: patientID, UserID: "u", Action: ActionViewPatient})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to write access log entry", logs.All()[0].Message)
}

func TestRecord_NilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), Entry{PatientID: patientID})
}

func TestList_ReturnsEntriesInOrder(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM referral.patient_access_log")).
		WithArgs(patientID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY seq ASC")).
		WithArgs(patientID, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "patient_id", "hospital_id", "user_id", "action", "plugin_name", "context", "created_at"}).
			AddRow(int64(1), patientID, nil, "u1", ActionViewPatient, nil, []byte(`{}`), now).
			AddRow(int64(2), patientID, "11111111-1111-1111-1111-111111111111", "u2", ActionWritePluginData, "allergy-tracker", []byte(`{"keys":2}`), now))

	entries, total, err := NewRecorder(sqlDB, zap.NewNop()).List(context.Background(), patientID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, "", entries[0].HospitalID)
	assert.Equal(t, "allergy-tracker", entries[1].PluginName)
	assert.Equal(t, float64(2), entries[1].Context["keys"])
}

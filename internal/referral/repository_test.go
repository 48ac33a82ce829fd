package referral

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

const referralID = "66666666-6666-6666-6666-666666666666"

var referralRowColumns = []string{"id", "referral_code", "patient_id", "from_hospital_id", "to_hospital_id", "reason", "notes", "priority", "status", "requires_ambulance", "completed_at", "created_by_user_id", "created_at", "updated_at"}

func referralRow(status Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(referralRowColumns).AddRow(
		referralID, "REF-ABCD1234", patientID, sender, receiver, "Cardiology consult", nil,
		"URGENT", string(status), true, nil, "doc-1", now, now,
	)
}

func TestRepositoryInsert_CodeCollision(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO referral.referrals")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "referrals_referral_code_key"})

	_, err = NewRepository(sqlDB).Insert(context.Background(), &Referral{ID: referralID, ReferralCode: "REF-ABCD1234"})
	assert.True(t, errors.Is(err, ErrCodeTaken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsert_MissingReferenceIsNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO referral.referrals")).
		WillReturnError(&pq.Error{Code: "23503"})

	_, err = NewRepository(sqlDB).Insert(context.Background(), &Referral{ID: referralID})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRepositoryGetForUpdate_LocksRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM referral.referrals WHERE id = $1 FOR UPDATE")).
		WithArgs(referralID).
		WillReturnRows(referralRow(StatusAccepted))

	ref, err := NewRepository(sqlDB).GetForUpdate(context.Background(), referralID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, ref.Status)
	assert.Equal(t, PriorityUrgent, ref.Priority)
	assert.Equal(t, "", ref.Notes)
	assert.Nil(t, ref.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet_MalformedIDIsNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = NewRepository(sqlDB).Get(context.Background(), "REF-ABCD1234")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryList_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter ListFilter
		query  string
		args   int
	}{
		{"no filter", ListFilter{}, "WHERE (from_hospital_id = $1 OR to_hospital_id = $1) ORDER BY created_at DESC", 1},
		{"status", ListFilter{Status: StatusPending}, "to_hospital_id = $1) AND status = $2 ORDER BY", 2},
		{"patient", ListFilter{PatientID: patientID}, "to_hospital_id = $1) AND patient_id = $2 ORDER BY", 2},
		{"both", ListFilter{Status: StatusPending, PatientID: patientID}, "AND status = $2 AND patient_id = $3 ORDER BY", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlDB.Close()

			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).
				WillReturnRows(referralRow(StatusPending))

			refs, err := NewRepository(sqlDB).List(context.Background(), sender, tt.filter)
			require.NoError(t, err)
			assert.Len(t, refs, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepositoryList_MalformedPatientFilterIsEmpty(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	refs, err := NewRepository(sqlDB).List(context.Background(), sender, ListFilter{PatientID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStatus_KeepsNotesWhenNil(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("notes = COALESCE($3, notes)")).
		WithArgs(referralID, StatusCancelled, nil, nil, sqlmock.AnyArg()).
		WillReturnRows(referralRow(StatusCancelled))

	ref, err := NewRepository(sqlDB).UpdateStatus(context.Background(), referralID, StatusCancelled, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ref.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryHistory_OrderedBySeq(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY seq ASC")).
		WithArgs(referralID).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "referral_id", "from_status", "to_status", "changed_by_user_id", "changed_by_hospital_id", "notes", "changed_at"}).
			AddRow(int64(1), referralID, nil, "PENDING", "doc-1", sender, nil, now).
			AddRow(int64(2), referralID, "PENDING", "ACCEPTED", "doc-2", receiver, "ok", now))

	history, err := NewRepository(sqlDB).History(context.Background(), referralID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, Status(""), history[0].FromStatus)
	assert.Equal(t, StatusPending, history[1].FromStatus)
	assert.Equal(t, "ok", history[1].Notes)
}

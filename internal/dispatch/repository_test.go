package dispatch

import (
	"context"
	"database/sql"
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

const ambulanceID = "77777777-7777-7777-7777-777777777777"

func TestRepositoryClaimAvailableAmbulance_SkipsLockedRows(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1 FOR UPDATE SKIP LOCKED")).
		WithArgs(sender, AmbulanceAvailable).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hospital_id", "call_sign", "vehicle_type", "status", "created_at", "updated_at"}).
			AddRow(ambulanceID, sender, "SND-1", "STANDARD", "AVAILABLE", time.Now(), nil))

	a, err := NewRepository(sqlDB).ClaimAvailableAmbulance(context.Background(), sender)
	require.NoError(t, err)
	assert.Equal(t, ambulanceID, a.ID)
	assert.Nil(t, a.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryClaimAvailableAmbulance_NoneLeft(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnError(sql.ErrNoRows)

	_, err = NewRepository(sqlDB).ClaimAvailableAmbulance(context.Background(), sender)
	assert.True(t, errors.Is(err, apperrors.ErrNoAvailableResource))
}

func TestRepositoryInsertDispatch_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
	}{
		{"ambulance_dispatches_referral_id_key"},
		{"idx_dispatches_active_ambulance"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			sqlDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlDB.Close()

			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO referral.ambulance_dispatches")).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			_, err = NewRepository(sqlDB).InsertDispatch(context.Background(), &Dispatch{ID: "d", ReferralID: referralA, AmbulanceID: ambulanceID})
			assert.True(t, errors.Is(err, apperrors.ErrConflict))
		})
	}
}

func TestRepositoryInsertAmbulance_DuplicateCallSign(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO referral.ambulances")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ambulances_hospital_call_sign_key"})

	_, err = NewRepository(sqlDB).InsertAmbulance(context.Background(), &Ambulance{ID: ambulanceID, HospitalID: sender, CallSign: "SND-1"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestRepositoryGetByReferral(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM referral.ambulance_dispatches WHERE referral_id = $1 FOR UPDATE")).
		WithArgs(referralA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "referral_id", "ambulance_id", "status", "dispatch_time", "estimated_arrival", "pickup_location", "dropoff_location", "current_location", "driver_name", "driver_phone", "notes", "completed_at", "updated_at"}).
			AddRow("d-1", referralA, ambulanceID, "EN_ROUTE", now, now.Add(etaOffset), "Ward 3", nil, nil, "Sam", nil, nil, nil, now))

	d, err := NewRepository(sqlDB).GetByReferralForUpdate(context.Background(), referralA)
	require.NoError(t, err)
	assert.Equal(t, StatusEnRoute, d.Status)
	assert.Equal(t, "Ward 3", d.PickupLocation)
	assert.Equal(t, "Sam", d.DriverName)
	assert.Equal(t, "", d.CurrentLocation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByReferral_MissingIsNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM referral.ambulance_dispatches")).
		WillReturnError(sql.ErrNoRows)

	_, err = NewRepository(sqlDB).GetByReferral(context.Background(), referralA)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = NewRepository(sqlDB).GetByReferral(context.Background(), "REF-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRepositoryUpdateLocationByAmbulance(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("status IN ('DISPATCHED', 'EN_ROUTE', 'ARRIVED')")).
		WithArgs(ambulanceID, "52.1,4.3", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewRepository(sqlDB).UpdateLocationByAmbulance(context.Background(), ambulanceID, "52.1,4.3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewRepository(sqlDB).UpdateLocationByAmbulance(context.Background(), "unit-7", "52.1,4.3")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

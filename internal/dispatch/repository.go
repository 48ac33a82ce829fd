package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

const (
	referralConstraint = "ambulance_dispatches_referral_id_key"
	callSignConstraint = "ambulances_hospital_call_sign_key"
	activeAmbulanceIdx = "idx_dispatches_active_ambulance"
)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx db.DBTX) RepositoryInterface {
	return &Repository{db: tx}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const ambulanceColumns = `id, hospital_id, call_sign, vehicle_type, status, created_at, updated_at`

func scanAmbulance(row rowScanner) (*Ambulance, error) {
	var a Ambulance
	var updatedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.HospitalID, &a.CallSign, &a.VehicleType, &a.Status, &a.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}
	return &a, nil
}

const dispatchColumns = `id, referral_id, ambulance_id, status, dispatch_time, estimated_arrival, pickup_location, dropoff_location, current_location, driver_name, driver_phone, notes, completed_at, updated_at`

func scanDispatch(row rowScanner) (*Dispatch, error) {
	var d Dispatch
	var pickup, dropoff, current, driver, phone, notes sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&d.ID,
		&d.ReferralID,
		&d.AmbulanceID,
		&d.Status,
		&d.DispatchTime,
		&d.EstimatedArrival,
		&pickup,
		&dropoff,
		&current,
		&driver,
		&phone,
		&notes,
		&completedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.PickupLocation = pickup.String
	d.DropoffLocation = dropoff.String
	d.CurrentLocation = current.String
	d.DriverName = driver.String
	d.DriverPhone = phone.String
	d.Notes = notes.String
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func (r *Repository) InsertAmbulance(ctx context.Context, a *Ambulance) (*Ambulance, error) {
	query := `
		INSERT INTO referral.ambulances (id, hospital_id, call_sign, vehicle_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + ambulanceColumns

	out, err := scanAmbulance(r.db.QueryRowContext(ctx, query,
		a.ID, a.HospitalID, a.CallSign, a.VehicleType, a.Status, time.Now().UTC(),
	))
	if err != nil {
		if db.IsUniqueViolation(err, callSignConstraint) {
			return nil, fmt.Errorf("%w: call sign %s already exists", apperrors.ErrConflict, a.CallSign)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, a.HospitalID)
		}
		return nil, fmt.Errorf("failed to insert ambulance: %w", err)
	}
	return out, nil
}

func (r *Repository) GetAmbulanceForUpdate(ctx context.Context, id string) (*Ambulance, error) {
	if !db.IsUUID(id) {
		return nil, fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, id)
	}

	query := `SELECT ` + ambulanceColumns + ` FROM referral.ambulances WHERE id = $1 FOR UPDATE`

	a, err := scanAmbulance(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ambulance: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAmbulances(ctx context.Context, hospitalID string) ([]Ambulance, error) {
	if !db.IsUUID(hospitalID) {
		return []Ambulance{}, nil
	}

	query := `SELECT ` + ambulanceColumns + ` FROM referral.ambulances WHERE hospital_id = $1 ORDER BY call_sign ASC`

	rows, err := r.db.QueryContext(ctx, query, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ambulances: %w", err)
	}
	defer rows.Close()

	out := []Ambulance{}
	for rows.Next() {
		a, err := scanAmbulance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ambulance: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ambulances: %w", err)
	}
	return out, nil
}

// ClaimAvailableAmbulance locks the oldest AVAILABLE ambulance of hospitalID.
// Rows locked by concurrent allocations are skipped rather than waited on.
func (r *Repository) ClaimAvailableAmbulance(ctx context.Context, hospitalID string) (*Ambulance, error) {
	query := `
		SELECT ` + ambulanceColumns + `
		FROM referral.ambulances
		WHERE hospital_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	a, err := scanAmbulance(r.db.QueryRowContext(ctx, query, hospitalID, AmbulanceAvailable))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no ambulance available at hospital %s", apperrors.ErrNoAvailableResource, hospitalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim ambulance: %w", err)
	}
	return a, nil
}

func (r *Repository) SetAmbulanceStatus(ctx context.Context, id string, status AmbulanceStatus) (*Ambulance, error) {
	query := `
		UPDATE referral.ambulances SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + ambulanceColumns

	a, err := scanAmbulance(r.db.QueryRowContext(ctx, query, id, status, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ambulance status: %w", err)
	}
	return a, nil
}

func (r *Repository) InsertDispatch(ctx context.Context, d *Dispatch) (*Dispatch, error) {
	query := `
		INSERT INTO referral.ambulance_dispatches
		(id, referral_id, ambulance_id, status, dispatch_time, estimated_arrival, pickup_location, dropoff_location, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $5)
		RETURNING ` + dispatchColumns

	out, err := scanDispatch(r.db.QueryRowContext(ctx, query,
		d.ID,
		d.ReferralID,
		d.AmbulanceID,
		d.Status,
		d.DispatchTime,
		d.EstimatedArrival,
		nullString(d.PickupLocation),
		nullString(d.DropoffLocation),
		nullString(d.Notes),
	))
	if err != nil {
		if db.IsUniqueViolation(err, referralConstraint) {
			return nil, fmt.Errorf("%w: referral %s already has a dispatch", apperrors.ErrConflict, d.ReferralID)
		}
		if db.IsUniqueViolation(err, activeAmbulanceIdx) {
			return nil, fmt.Errorf("%w: ambulance %s is already dispatched", apperrors.ErrConflict, d.AmbulanceID)
		}
		return nil, fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return out, nil
}

func (r *Repository) GetByReferral(ctx context.Context, referralID string) (*Dispatch, error) {
	return r.getByReferral(ctx, referralID, "")
}

func (r *Repository) GetByReferralForUpdate(ctx context.Context, referralID string) (*Dispatch, error) {
	return r.getByReferral(ctx, referralID, " FOR UPDATE")
}

func (r *Repository) getByReferral(ctx context.Context, referralID, lock string) (*Dispatch, error) {
	if !db.IsUUID(referralID) {
		return nil, fmt.Errorf("%w: dispatch for referral %s", apperrors.ErrNotFound, referralID)
	}

	query := `SELECT ` + dispatchColumns + ` FROM referral.ambulance_dispatches WHERE referral_id = $1` + lock

	d, err := scanDispatch(r.db.QueryRowContext(ctx, query, referralID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: dispatch for referral %s", apperrors.ErrNotFound, referralID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return d, nil
}

func (r *Repository) UpdateDispatch(ctx context.Context, id string, ch Changes) (*Dispatch, error) {
	query := `
		UPDATE referral.ambulance_dispatches
		SET status = $2,
		    current_location = COALESCE($3, current_location),
		    driver_name = COALESCE($4, driver_name),
		    driver_phone = COALESCE($5, driver_phone),
		    notes = COALESCE($6, notes),
		    completed_at = COALESCE($7, completed_at),
		    updated_at = $8
		WHERE id = $1
		RETURNING ` + dispatchColumns

	var completedAt interface{}
	if ch.CompletedAt != nil {
		completedAt = *ch.CompletedAt
	}

	d, err := scanDispatch(r.db.QueryRowContext(ctx, query,
		id,
		ch.Status,
		optional(ch.CurrentLocation),
		optional(ch.DriverName),
		optional(ch.DriverPhone),
		optional(ch.Notes),
		completedAt,
		time.Now().UTC(),
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: dispatch %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update dispatch: %w", err)
	}
	return d, nil
}

// UpdateLocationByAmbulance records a position report against the active
// dispatch of ambulanceID. It reports false when the ambulance has none.
func (r *Repository) UpdateLocationByAmbulance(ctx context.Context, ambulanceID, location string) (bool, error) {
	if !db.IsUUID(ambulanceID) {
		return false, nil
	}

	query := `
		UPDATE referral.ambulance_dispatches
		SET current_location = $2, updated_at = $3
		WHERE ambulance_id = $1 AND status IN ('DISPATCHED', 'EN_ROUTE', 'ARRIVED')`

	res, err := r.db.ExecContext(ctx, query, ambulanceID, location, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to update dispatch location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

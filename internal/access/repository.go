package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) PatientHome(ctx context.Context, patientID string) (string, bool, error) {
	if !db.IsUUID(patientID) {
		return "", false, nil
	}
	var home sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT hospital_id FROM referral.patients WHERE id = $1`, patientID,
	).Scan(&home)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query patient home hospital: %w", err)
	}
	return home.String, true, nil
}

func (r *Repository) ActiveGrantLevel(ctx context.Context, patientID, hospitalID string, now time.Time) (Level, bool, error) {
	if !db.IsUUID(patientID) || !db.IsUUID(hospitalID) {
		return "", false, nil
	}
	var level string
	err := r.db.QueryRowContext(ctx, `
		SELECT access_level FROM referral.hospital_patient_access
		WHERE patient_id = $1 AND hospital_id = $2
		AND (expires_at IS NULL OR expires_at > $3)
	`, patientID, hospitalID, now).Scan(&level)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query access grant: %w", err)
	}
	return Level(level), true, nil
}

func (r *Repository) HasActiveReferral(ctx context.Context, patientID, hospitalID string) (bool, error) {
	if !db.IsUUID(patientID) || !db.IsUUID(hospitalID) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM referral.referrals
			WHERE patient_id = $1
			AND status IN ('PENDING', 'ACCEPTED')
			AND (from_hospital_id = $2 OR to_hospital_id = $2)
		)
	`, patientID, hospitalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active referral: %w", err)
	}
	return exists, nil
}

func (r *Repository) UpsertGrant(ctx context.Context, patientID, grantedBy, hospitalID string, level Level, expiresAt *time.Time) (*Grant, error) {
	if !db.IsUUID(hospitalID) {
		return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, hospitalID)
	}

	query := `
		INSERT INTO referral.hospital_patient_access
		(id, patient_id, hospital_id, access_level, granted_at, granted_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id, hospital_id) DO UPDATE SET
			access_level = EXCLUDED.access_level,
			granted_at = EXCLUDED.granted_at,
			granted_by = EXCLUDED.granted_by,
			expires_at = EXCLUDED.expires_at
		RETURNING id, patient_id, hospital_id, access_level, granted_at, granted_by, expires_at
	`

	var g Grant
	var storedLevel string
	var exp sql.NullTime
	err := r.db.QueryRowContext(ctx, query,
		uuid.New(), patientID, hospitalID, string(level), time.Now().UTC(), grantedBy, expiresAt,
	).Scan(&g.ID, &g.PatientID, &g.HospitalID, &storedLevel, &g.GrantedAt, &g.GrantedBy, &exp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, hospitalID)
		}
		return nil, fmt.Errorf("failed to upsert access grant: %w", err)
	}
	g.Level = Level(storedLevel)
	if exp.Valid {
		g.ExpiresAt = &exp.Time
	}
	return &g, nil
}

func (r *Repository) ListGrants(ctx context.Context, patientID string) ([]Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patient_id, hospital_id, access_level, granted_at, granted_by, expires_at
		FROM referral.hospital_patient_access
		WHERE patient_id = $1
		ORDER BY granted_at ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query access grants: %w", err)
	}
	defer rows.Close()

	grants := []Grant{}
	for rows.Next() {
		var g Grant
		var level string
		var exp sql.NullTime
		if err := rows.Scan(&g.ID, &g.PatientID, &g.HospitalID, &level, &g.GrantedAt, &g.GrantedBy, &exp); err != nil {
			return nil, fmt.Errorf("failed to scan access grant: %w", err)
		}
		g.Level = Level(level)
		if exp.Valid {
			g.ExpiresAt = &exp.Time
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access grants: %w", err)
	}
	return grants, nil
}

func (r *Repository) RevokeGrant(ctx context.Context, patientID, hospitalID string) error {
	if !db.IsUUID(hospitalID) {
		return fmt.Errorf("%w: grant for hospital %s", apperrors.ErrNotFound, hospitalID)
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM referral.hospital_patient_access WHERE patient_id = $1 AND hospital_id = $2`,
		patientID, hospitalID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke access grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: grant for hospital %s", apperrors.ErrNotFound, hospitalID)
	}
	return nil
}

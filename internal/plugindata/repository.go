package plugindata

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

// RepositoryInterface defines plugin data persistence.
type RepositoryInterface interface {
	Get(ctx context.Context, patientID, pluginName string) (*Entry, error)
	Upsert(ctx context.Context, u Upsert) (*Entry, bool, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const entryColumns = `patient_id, plugin_name, data, created_by_user_id, created_by_hospital_id, updated_by_user_id, updated_by_hospital_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner, extra ...interface{}) (*Entry, error) {
	var e Entry
	var data []byte
	var createdHospital, updatedHospital sql.NullString
	var createdAt, updatedAt time.Time

	dest := []interface{}{
		&e.PatientID,
		&e.PluginName,
		&data,
		&e.CreatedBy,
		&createdHospital,
		&e.UpdatedBy,
		&updatedHospital,
		&createdAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	e.Data = data
	e.Status = StatusFound
	e.CreatedByHospitalID = createdHospital.String
	e.UpdatedByHospitalID = updatedHospital.String
	e.CreatedAt = &createdAt
	e.UpdatedAt = &updatedAt
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) Get(ctx context.Context, patientID, pluginName string) (*Entry, error) {
	if !db.IsUUID(patientID) {
		return nil, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, patientID)
	}

	query := `SELECT ` + entryColumns + ` FROM referral.patient_plugin_data WHERE patient_id = $1 AND plugin_name = $2`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, patientID, pluginName))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s data for patient %s", apperrors.ErrNotFound, pluginName, patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin data: %w", err)
	}
	return e, nil
}

// Upsert writes the payload for (patient, plugin). The created flag is true
// when no row existed before.
func (r *Repository) Upsert(ctx context.Context, u Upsert) (*Entry, bool, error) {
	query := `
		INSERT INTO referral.patient_plugin_data
		(id, patient_id, plugin_name, data, created_by_user_id, created_by_hospital_id, updated_by_user_id, updated_by_hospital_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $5, $6, $7, $7)
		ON CONFLICT (patient_id, plugin_name) DO UPDATE
		SET data = EXCLUDED.data,
		    updated_by_user_id = EXCLUDED.updated_by_user_id,
		    updated_by_hospital_id = EXCLUDED.updated_by_hospital_id,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + entryColumns + `, (xmax = 0) AS created`

	var created bool
	e, err := scanEntry(r.db.QueryRowContext(ctx, query,
		u.ID,
		u.PatientID,
		u.PluginName,
		string(u.Data),
		u.UserID,
		nullString(u.HospitalID),
		time.Now().UTC(),
	), &created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, false, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, u.PatientID)
		}
		return nil, false, fmt.Errorf("failed to upsert plugin data: %w", err)
	}
	return e, created, nil
}

package hospital

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx db.DBTX) *Repository {
	return &Repository{db: tx}
}

const hospitalColumns = `id, name, code, contact_email, contact_phone, address, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHospital(row rowScanner) (*HospitalResponse, error) {
	var h HospitalResponse
	var email, phone, address sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Code,
		&email,
		&phone,
		&address,
		&h.IsActive,
		&h.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.ContactEmail = email.String
	h.ContactPhone = phone.String
	h.Address = address.String
	if updatedAt.Valid {
		h.UpdatedAt = &updatedAt.Time
	}
	return &h, nil
}

func (r *Repository) CreateHospital(ctx context.Context, req CreateHospitalRequest) (*HospitalResponse, error) {
	query := `
		INSERT INTO referral.hospitals
		(id, name, code, contact_email, contact_phone, address, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
		RETURNING ` + hospitalColumns

	h, err := scanHospital(r.db.QueryRowContext(ctx, query,
		uuid.New(),
		req.Name,
		req.Code,
		req.ContactEmail,
		req.ContactPhone,
		req.Address,
		time.Now().UTC(),
	))
	if err != nil {
		if db.IsUniqueViolation(err, "hospitals_code_key") {
			return nil, fmt.Errorf("%w: hospital with code %s already exists", apperrors.ErrConflict, req.Code)
		}
		return nil, fmt.Errorf("failed to insert hospital: %w", err)
	}
	return h, nil
}

func (r *Repository) ListHospitals(ctx context.Context, limit, offset int) ([]HospitalResponse, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM referral.hospitals`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count hospitals: %w", err)
	}

	query := `SELECT ` + hospitalColumns + `
		FROM referral.hospitals
		ORDER BY name ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query hospitals: %w", err)
	}
	defer rows.Close()

	hospitals := []HospitalResponse{}
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan hospital: %w", err)
		}
		hospitals = append(hospitals, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating hospitals: %w", err)
	}
	return hospitals, total, nil
}

func (r *Repository) GetHospital(ctx context.Context, id string) (*HospitalResponse, error) {
	if !db.IsUUID(id) {
		return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, id)
	}

	query := `SELECT ` + hospitalColumns + ` FROM referral.hospitals WHERE id = $1`

	h, err := scanHospital(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query hospital: %w", err)
	}
	return h, nil
}

// Exists reports whether an active hospital with id exists.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	if !db.IsUUID(id) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM referral.hospitals WHERE id = $1 AND is_active)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check hospital: %w", err)
	}
	return exists, nil
}

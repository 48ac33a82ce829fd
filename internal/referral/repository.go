package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

const codeConstraint = "referrals_referral_code_key"

// ErrCodeTaken is returned by Insert when the generated referral code collides.
var ErrCodeTaken = errors.New("referral code already taken")

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx db.DBTX) RepositoryInterface {
	return &Repository{db: tx}
}

const referralColumns = `id, referral_code, patient_id, from_hospital_id, to_hospital_id, reason, notes, priority, status, requires_ambulance, completed_at, created_by_user_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReferral(row rowScanner) (*Referral, error) {
	var ref Referral
	var notes sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&ref.ID,
		&ref.ReferralCode,
		&ref.PatientID,
		&ref.FromHospitalID,
		&ref.ToHospitalID,
		&ref.Reason,
		&notes,
		&ref.Priority,
		&ref.Status,
		&ref.RequiresAmbulance,
		&completedAt,
		&ref.CreatedByUserID,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ref.Notes = notes.String
	if completedAt.Valid {
		ref.CompletedAt = &completedAt.Time
	}
	return &ref, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) Insert(ctx context.Context, ref *Referral) (*Referral, error) {
	query := `
		INSERT INTO referral.referrals
		(id, referral_code, patient_id, from_hospital_id, to_hospital_id, reason, notes, priority, status, requires_ambulance, created_by_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING ` + referralColumns

	out, err := scanReferral(r.db.QueryRowContext(ctx, query,
		ref.ID,
		ref.ReferralCode,
		ref.PatientID,
		ref.FromHospitalID,
		ref.ToHospitalID,
		ref.Reason,
		nullString(ref.Notes),
		ref.Priority,
		ref.Status,
		ref.RequiresAmbulance,
		ref.CreatedByUserID,
		time.Now().UTC(),
	))
	if err != nil {
		if db.IsUniqueViolation(err, codeConstraint) {
			return nil, fmt.Errorf("%w: %s", ErrCodeTaken, ref.ReferralCode)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, fmt.Errorf("%w: referenced patient or hospital does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to insert referral: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Referral, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate locks the referral row until the surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*Referral, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, id, lock string) (*Referral, error) {
	if !db.IsUUID(id) {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}

	query := `SELECT ` + referralColumns + ` FROM referral.referrals WHERE id = $1` + lock

	ref, err := scanReferral(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return ref, nil
}

// UpdateStatus sets status and, when notes is non-nil, notes. completedAt is
// written only when non-nil.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, notes *string, completedAt *time.Time) (*Referral, error) {
	query := `
		UPDATE referral.referrals
		SET status = $2,
		    notes = COALESCE($3, notes),
		    completed_at = COALESCE($4, completed_at),
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + referralColumns

	var notesArg interface{}
	if notes != nil {
		notesArg = *notes
	}
	var completedArg interface{}
	if completedAt != nil {
		completedArg = *completedAt
	}

	ref, err := scanReferral(r.db.QueryRowContext(ctx, query, id, status, notesArg, completedArg, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update referral status: %w", err)
	}
	return ref, nil
}

// List returns referrals sent or received by hospitalID, newest first.
func (r *Repository) List(ctx context.Context, hospitalID string, filter ListFilter) ([]Referral, error) {
	if !db.IsUUID(hospitalID) {
		return []Referral{}, nil
	}

	where := []string{"(from_hospital_id = $1 OR to_hospital_id = $1)"}
	args := []interface{}{hospitalID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PatientID != "" {
		if !db.IsUUID(filter.PatientID) {
			return []Referral{}, nil
		}
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}

	query := `SELECT ` + referralColumns + ` FROM referral.referrals WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	refs := []Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrals: %w", err)
	}
	return refs, nil
}

func (r *Repository) AppendHistory(ctx context.Context, change StatusChange) error {
	query := `
		INSERT INTO referral.referral_status_history
		(referral_id, from_status, to_status, changed_by_user_id, changed_by_hospital_id, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		change.ReferralID,
		nullString(string(change.FromStatus)),
		change.ToStatus,
		change.ChangedByUserID,
		change.ChangedByHospitalID,
		nullString(change.Notes),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append referral history: %w", err)
	}
	return nil
}

// History returns the status changes of a referral in the order they happened.
func (r *Repository) History(ctx context.Context, referralID string) ([]StatusChange, error) {
	query := `
		SELECT seq, referral_id, from_status, to_status, changed_by_user_id, changed_by_hospital_id, notes, changed_at
		FROM referral.referral_status_history
		WHERE referral_id = $1
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, referralID)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral history: %w", err)
	}
	defer rows.Close()

	history := []StatusChange{}
	for rows.Next() {
		var c StatusChange
		var from, notes sql.NullString
		if err := rows.Scan(&c.Seq, &c.ReferralID, &from, &c.ToStatus, &c.ChangedByUserID, &c.ChangedByHospitalID, &notes, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral history: %w", err)
		}
		c.FromStatus = Status(from.String)
		c.Notes = notes.String
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral history: %w", err)
	}
	return history, nil
}

package patient

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
	"github.com/WailSalutem-Health-Care/referral-service/internal/identity"
)

const mrnConstraint = "patients_mrn_key"

// ErrMRNTaken is returned by Insert when the generated MRN collides.
var ErrMRNTaken = errors.New("mrn already taken")

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx db.DBTX) RepositoryInterface {
	return &Repository{db: tx}
}

const patientColumns = `id, mrn, name, telecom, address, medical_history, birth_date, gender, hospital_id, qr_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var mrn, gender, hospitalID, qrCode sql.NullString
	var birthDate, updatedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&mrn,
		&rec.Name,
		&rec.Telecom,
		&rec.Address,
		&rec.MedicalHistory,
		&birthDate,
		&gender,
		&hospitalID,
		&qrCode,
		&rec.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.MRN = mrn.String
	rec.Gender = gender.String
	rec.HospitalID = hospitalID.String
	rec.QRCode = qrCode.String
	if birthDate.Valid {
		rec.BirthDate = &birthDate.Time
	}
	if updatedAt.Valid {
		rec.UpdatedAt = &updatedAt.Time
	}
	return &rec, nil
}

// jsonParam binds raw JSON to a JSONB column. lib/pq sends []byte as bytea.
func jsonParam(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) Insert(ctx context.Context, rec NewRecord) (*Record, error) {
	query := `
		INSERT INTO referral.patients
		(id, mrn, name, telecom, address, medical_history, birth_date, gender, hospital_id, qr_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + patientColumns

	history := jsonParam(rec.MedicalHistory)
	if history == nil {
		history = "{}"
	}

	out, err := scanRecord(r.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.MRN,
		jsonParam(rec.Name),
		jsonParam(rec.Telecom),
		jsonParam(rec.Address),
		history,
		rec.BirthDate,
		nullString(rec.Gender),
		nullString(rec.HospitalID),
		nullString(rec.QRCode),
		time.Now().UTC(),
	))
	if err != nil {
		if db.IsUniqueViolation(err, mrnConstraint) {
			return nil, fmt.Errorf("%w: %s", ErrMRNTaken, rec.MRN)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, rec.HospitalID)
		}
		return nil, fmt.Errorf("failed to insert patient: %w", err)
	}

	if err := r.replaceContacts(ctx, out.ID, rec.Emails, rec.Phones); err != nil {
		return nil, err
	}
	if err := r.attachContacts(ctx, []*Record{out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	if !db.IsUUID(id) {
		return nil, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, id)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM referral.patients WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient: %w", err)
	}

	if err := r.attachContacts(ctx, []*Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByMRN matches case-insensitively; stored MRNs are upper case.
func (r *Repository) GetByMRN(ctx context.Context, mrn string) (*Record, error) {
	mrn = strings.ToUpper(strings.TrimSpace(mrn))
	if mrn == "" {
		return nil, fmt.Errorf("%w: patient with empty MRN", apperrors.ErrNotFound)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM referral.patients WHERE UPPER(mrn) = $1`, mrn))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: patient with MRN %s", apperrors.ErrNotFound, mrn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient by MRN: %w", err)
	}

	if err := r.attachContacts(ctx, []*Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]Record, int, error) {
	if !db.IsUUID(hospitalID) {
		return []Record{}, 0, nil
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referral.patients WHERE hospital_id = $1`, hospitalID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+patientColumns+`
		FROM referral.patients
		WHERE hospital_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var ptrs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan patient: %w", err)
		}
		ptrs = append(ptrs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating patients: %w", err)
	}
	rows.Close()

	if err := r.attachContacts(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(ptrs))
	for _, rec := range ptrs {
		records = append(records, *rec)
	}
	return records, total, nil
}

// Update applies ch. The mrn and qr_code columns are never part of the statement.
func (r *Repository) Update(ctx context.Context, id string, ch Changes) (*Record, error) {
	if !db.IsUUID(id) {
		return nil, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, id)
	}

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if ch.Name != nil {
		add("name", jsonParam(ch.Name))
	}
	if ch.Telecom != nil {
		add("telecom", jsonParam(ch.Telecom))
	}
	if ch.Address != nil {
		add("address", jsonParam(ch.Address))
	}
	if ch.MedicalHistory != nil {
		add("medical_history", jsonParam(ch.MedicalHistory))
	}
	if ch.BirthDate != nil {
		add("birth_date", *ch.BirthDate)
	}
	if ch.Gender != nil {
		add("gender", nullString(*ch.Gender))
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE referral.patients SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), patientColumns)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}

	if ch.Emails != nil || ch.Phones != nil {
		if err := r.replaceContacts(ctx, id, ch.Emails, ch.Phones); err != nil {
			return nil, err
		}
	}
	if err := r.attachContacts(ctx, []*Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// AssignMRN sets the MRN of a legacy patient that has none. It reports false
// when the row already carries an MRN, which is then left untouched.
func (r *Repository) AssignMRN(ctx context.Context, id, mrn, qrCode string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE referral.patients
		SET mrn = $2, qr_code = COALESCE(NULLIF(qr_code, ''), $3), updated_at = $4
		WHERE id = $1 AND (mrn IS NULL OR mrn = '')
	`, id, mrn, qrCode, time.Now().UTC())
	if err != nil {
		if db.IsUniqueViolation(err, mrnConstraint) {
			return false, fmt.Errorf("%w: %s", ErrMRNTaken, mrn)
		}
		return false, fmt.Errorf("failed to assign MRN: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// replaceContacts rewrites the child tables for whichever list is non-nil.
// The first entry of each list becomes primary.
func (r *Repository) replaceContacts(ctx context.Context, patientID string, emails, phones []string) error {
	if emails != nil {
		if err := r.replaceContactTable(ctx, "patient_emails", "email", patientID, emails); err != nil {
			return err
		}
	}
	if phones != nil {
		if err := r.replaceContactTable(ctx, "patient_phones", "phone", patientID, phones); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) replaceContactTable(ctx context.Context, table, column, patientID string, values []string) error {
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM referral.%s WHERE patient_id = $1`, table), patientID,
	); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	insert := fmt.Sprintf(`INSERT INTO referral.%s (patient_id, %s, is_primary, created_at) VALUES ($1, $2, $3, $4)`, table, column)
	now := time.Now().UTC()
	primary := true
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, insert, patientID, v, primary, now); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		primary = false
	}
	return nil
}

// attachContacts loads emails and phones for all recs with one query per table.
func (r *Repository) attachContacts(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(recs))
	byID := make(map[string]*Record, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
		byID[rec.ID] = rec
	}

	emails, err := r.loadContacts(ctx, "patient_emails", "email", ids)
	if err != nil {
		return err
	}
	phones, err := r.loadContacts(ctx, "patient_phones", "phone", ids)
	if err != nil {
		return err
	}
	for id, rec := range byID {
		rec.Emails = emails[id]
		rec.Phones = phones[id]
	}
	return nil
}

func (r *Repository) loadContacts(ctx context.Context, table, column string, ids []string) (map[string][]identity.ContactRecord, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT patient_id, id, %s, is_primary, created_at
		FROM referral.%s
		WHERE patient_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, column, table), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]identity.ContactRecord)
	for rows.Next() {
		var patientID string
		var c identity.ContactRecord
		if err := rows.Scan(&patientID, &c.ID, &c.Value, &c.IsPrimary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out[patientID] = append(out[patientID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return out, nil
}

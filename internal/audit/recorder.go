package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
)

// RecorderInterface is what domain services depend on. Record never fails the
// caller's operation.
type RecorderInterface interface {
	Record(ctx context.Context, e Entry)
}

var _ RecorderInterface = (*Recorder)(nil)

type Recorder struct {
	db     db.DBTX
	logger *zap.Logger
}

func NewRecorder(conn db.DBTX, logger *zap.Logger) *Recorder {
	return &Recorder{db: conn, logger: logger}
}

// Record appends e to the access log. Write failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.db == nil {
		return
	}
	log := logging.For(ctx, r.logger)

	if !db.IsUUID(e.PatientID) {
		log.Warn("skipping access log entry with malformed patient id", zap.String("patient_id", e.PatientID))
		return
	}

	payload := e.Context
	if payload == nil {
		payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn("failed to encode access log context", zap.Error(err))
		raw = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO referral.patient_access_log
		(patient_id, hospital_id, user_id, action, plugin_name, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.PatientID, nullUUID(e.HospitalID), e.UserID, e.Action, nullString(e.PluginName), string(raw), time.Now().UTC())
	if err != nil {
		log.Warn("failed to write access log entry",
			zap.String("patient_id", e.PatientID),
			zap.String("action", e.Action),
			zap.Error(err),
		)
	}
}

// List returns a patient's access log in write order.
func (r *Recorder) List(ctx context.Context, patientID string, limit, offset int) ([]LogEntry, int, error) {
	if !db.IsUUID(patientID) {
		return []LogEntry{}, 0, nil
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referral.patient_access_log WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count access log entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, patient_id, hospital_id, user_id, action, plugin_name, context, created_at
		FROM referral.patient_access_log
		WHERE patient_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query access log: %w", err)
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var hospitalID, pluginName sql.NullString
		var raw []byte
		if err := rows.Scan(&e.Seq, &e.PatientID, &hospitalID, &e.UserID, &e.Action, &pluginName, &raw, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan access log entry: %w", err)
		}
		e.HospitalID = hospitalID.String
		e.PluginName = pluginName.String
		e.Context = map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Context); err != nil {
				r.logger.Warn("malformed access log context", zap.Int64("seq", e.Seq), zap.Error(err))
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating access log: %w", err)
	}
	return entries, total, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(s string) sql.NullString {
	return sql.NullString{String: s, Valid: db.IsUUID(s)}
}

// NopRecorder discards entries.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, e Entry) {}

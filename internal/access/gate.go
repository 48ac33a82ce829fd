package access

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
)

// DenialRecorder records gate denials as metrics.
type DenialRecorder interface {
	RecordAccessDenied(ctx context.Context, resource string, level string)
}

// GateInterface is the single choke point for patient and referral access.
type GateInterface interface {
	CanAccessPatient(ctx context.Context, hospitalID, patientID string, level Level) (bool, error)
	RequirePatient(ctx context.Context, hospitalID, patientID string, level Level) error
	CanAccessReferral(hospitalID string, ref ReferralParties) bool
}

var _ GateInterface = (*Gate)(nil)

type Gate struct {
	store   GateStore
	policy  string
	metrics DenialRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewGate builds the gate. policy is access.cross_hospital_reads: with "open"
// any hospital may READ any patient; WRITE and ADMIN always need a grant.
func NewGate(store GateStore, policy string, metrics DenialRecorder, logger *zap.Logger) *Gate {
	return &Gate{
		store:   store,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CanAccessPatient is true when hospitalID is the patient's home hospital,
// holds an unexpired grant at or above level, or is a party to a non-terminal
// referral for the patient (READ and WRITE only).
func (g *Gate) CanAccessPatient(ctx context.Context, hospitalID, patientID string, level Level) (bool, error) {
	if hospitalID == "" || patientID == "" {
		return false, nil
	}

	home, exists, err := g.store.PatientHome(ctx, patientID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if home != "" && home == hospitalID {
		return true, nil
	}

	if level == LevelRead && g.policy == config.CrossHospitalOpen {
		return true, nil
	}

	granted, ok, err := g.store.ActiveGrantLevel(ctx, patientID, hospitalID, g.now().UTC())
	if err != nil {
		return false, err
	}
	if ok && granted.Covers(level) {
		return true, nil
	}

	if level == LevelRead || level == LevelWrite {
		active, err := g.store.HasActiveReferral(ctx, patientID, hospitalID)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

// RequirePatient returns nil when access is allowed. A caller that cannot
// even read the patient gets ErrNotFound so existence is not leaked; a reader
// lacking the requested level gets ErrForbidden.
func (g *Gate) RequirePatient(ctx context.Context, hospitalID, patientID string, level Level) error {
	ok, err := g.CanAccessPatient(ctx, hospitalID, patientID, level)
	if err != nil {
		return fmt.Errorf("failed to check patient access: %w", err)
	}
	if ok {
		return nil
	}

	g.recordDenied(ctx, "patient", level)

	if level != LevelRead {
		canRead, err := g.CanAccessPatient(ctx, hospitalID, patientID, LevelRead)
		if err != nil {
			return fmt.Errorf("failed to check patient access: %w", err)
		}
		if canRead {
			return fmt.Errorf("%w: %s access to patient %s required", apperrors.ErrForbidden, level, patientID)
		}
	}
	return fmt.Errorf("%w: patient %s", apperrors.ErrNotFound, patientID)
}

// CanAccessReferral is true iff hospitalID is the sender or the receiver.
func (g *Gate) CanAccessReferral(hospitalID string, ref ReferralParties) bool {
	if ref.IsParty(hospitalID) {
		return true
	}
	g.recordDenied(context.Background(), "referral", "")
	return false
}

func (g *Gate) recordDenied(ctx context.Context, resource string, level Level) {
	if g.metrics != nil {
		g.metrics.RecordAccessDenied(ctx, resource, string(level))
	}
	g.logger.Debug("access denied", zap.String("resource", resource), zap.String("level", string(level)))
}

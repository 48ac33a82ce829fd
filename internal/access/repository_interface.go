package access

import (
	"context"
	"time"
)

// GateStore is the read side the gate decides on.
type GateStore interface {
	PatientHome(ctx context.Context, patientID string) (homeHospitalID string, exists bool, err error)
	ActiveGrantLevel(ctx context.Context, patientID, hospitalID string, now time.Time) (Level, bool, error)
	HasActiveReferral(ctx context.Context, patientID, hospitalID string) (bool, error)
}

// RepositoryInterface defines the contract for access grant data access
type RepositoryInterface interface {
	GateStore
	UpsertGrant(ctx context.Context, patientID, grantedBy string, hospitalID string, level Level, expiresAt *time.Time) (*Grant, error)
	ListGrants(ctx context.Context, patientID string) ([]Grant, error)
	RevokeGrant(ctx context.Context, patientID, hospitalID string) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

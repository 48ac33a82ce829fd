package access

import "context"

// ServiceInterface defines the contract for access grant management
type ServiceInterface interface {
	ListGrants(ctx context.Context, callerHospitalID, patientID string) ([]Grant, error)
	GrantAccess(ctx context.Context, callerHospitalID, userID, patientID string, req GrantRequest) (*Grant, error)
	RevokeAccess(ctx context.Context, callerHospitalID, patientID, hospitalID string) error
}

var _ ServiceInterface = (*Service)(nil)

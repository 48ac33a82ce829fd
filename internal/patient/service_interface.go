package patient

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// ServiceInterface defines the contract for patient business logic operations
type ServiceInterface interface {
	RegisterPatient(ctx context.Context, hospitalID, userID string, req RegisterPatientRequest) (*View, error)
	GetPatient(ctx context.Context, callerHospitalID, userID, id string) (*View, error)
	GetPatientByMRN(ctx context.Context, callerHospitalID, userID, mrn string) (*View, error)
	ListPatients(ctx context.Context, hospitalID string, params pagination.Params) (*PaginatedPatientListResponse, error)
	UpdatePatient(ctx context.Context, callerHospitalID, userID, id string, req UpdatePatientRequest) (*View, error)
}

var _ ServiceInterface = (*Service)(nil)

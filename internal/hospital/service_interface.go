package hospital

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// ServiceInterface defines the contract for hospital business logic operations
type ServiceInterface interface {
	CreateHospital(ctx context.Context, req CreateHospitalRequest) (*HospitalResponse, error)
	ListHospitals(ctx context.Context, params pagination.Params) (*PaginatedListResponse, error)
	GetHospital(ctx context.Context, id string) (*HospitalResponse, error)
}

var _ ServiceInterface = (*Service)(nil)

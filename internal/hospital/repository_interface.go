package hospital

import "context"

// RepositoryInterface defines the contract for hospital data access
type RepositoryInterface interface {
	CreateHospital(ctx context.Context, req CreateHospitalRequest) (*HospitalResponse, error)
	ListHospitals(ctx context.Context, limit, offset int) ([]HospitalResponse, int, error)
	GetHospital(ctx context.Context, id string) (*HospitalResponse, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

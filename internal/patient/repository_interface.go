package patient

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

// RepositoryInterface defines the contract for patient data access
type RepositoryInterface interface {
	Insert(ctx context.Context, rec NewRecord) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	GetByMRN(ctx context.Context, mrn string) (*Record, error)
	ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]Record, int, error)
	Update(ctx context.Context, id string, ch Changes) (*Record, error)
	AssignMRN(ctx context.Context, id, mrn, qrCode string) (bool, error)
	WithTx(tx db.DBTX) RepositoryInterface
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

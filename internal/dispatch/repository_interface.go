package dispatch

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

// RepositoryInterface defines ambulance and dispatch persistence.
type RepositoryInterface interface {
	InsertAmbulance(ctx context.Context, a *Ambulance) (*Ambulance, error)
	GetAmbulanceForUpdate(ctx context.Context, id string) (*Ambulance, error)
	ListAmbulances(ctx context.Context, hospitalID string) ([]Ambulance, error)
	ClaimAvailableAmbulance(ctx context.Context, hospitalID string) (*Ambulance, error)
	SetAmbulanceStatus(ctx context.Context, id string, status AmbulanceStatus) (*Ambulance, error)

	InsertDispatch(ctx context.Context, d *Dispatch) (*Dispatch, error)
	GetByReferral(ctx context.Context, referralID string) (*Dispatch, error)
	GetByReferralForUpdate(ctx context.Context, referralID string) (*Dispatch, error)
	UpdateDispatch(ctx context.Context, id string, ch Changes) (*Dispatch, error)
	UpdateLocationByAmbulance(ctx context.Context, ambulanceID, location string) (bool, error)

	WithTx(tx db.DBTX) RepositoryInterface
}

var _ RepositoryInterface = (*Repository)(nil)

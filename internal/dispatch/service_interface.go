package dispatch

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
)

// ServiceInterface defines the ambulance dispatch coordinator.
type ServiceInterface interface {
	RequestDispatch(ctx context.Context, actor referral.Actor, referralID string, req RequestDispatchRequest) (*Dispatch, error)
	GetDispatch(ctx context.Context, hospitalID, referralID string) (*Dispatch, error)
	UpdateDispatch(ctx context.Context, actor referral.Actor, referralID string, req UpdateDispatchRequest) (*Dispatch, error)

	ListAmbulances(ctx context.Context, hospitalID string) ([]Ambulance, error)
	CreateAmbulance(ctx context.Context, hospitalID string, req CreateAmbulanceRequest) (*Ambulance, error)
	SetAmbulanceStatus(ctx context.Context, hospitalID, ambulanceID string, req UpdateAmbulanceStatusRequest) (*Ambulance, error)
}

var (
	_ ServiceInterface      = (*Coordinator)(nil)
	_ referral.DispatchLink = (*Coordinator)(nil)
)

package referral

import "context"

// ServiceInterface defines the contract for referral business logic.
type ServiceInterface interface {
	CreateReferral(ctx context.Context, actor Actor, req CreateReferralRequest) (*Referral, error)
	GetReferral(ctx context.Context, hospitalID, id string) (*Referral, error)
	ListReferrals(ctx context.Context, hospitalID string, filter ListFilter) ([]Referral, error)
	UpdateReferral(ctx context.Context, actor Actor, id string, req UpdateReferralRequest) (*Referral, error)
	CancelReferral(ctx context.Context, actor Actor, id string, notes *string) (*Referral, error)
	ExportReferrals(ctx context.Context, hospitalID string, filter ListFilter) ([]byte, error)
}

var _ ServiceInterface = (*Service)(nil)

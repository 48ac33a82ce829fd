package referral

import (
	"context"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

// RepositoryInterface defines the referral persistence operations.
type RepositoryInterface interface {
	Insert(ctx context.Context, ref *Referral) (*Referral, error)
	Get(ctx context.Context, id string) (*Referral, error)
	GetForUpdate(ctx context.Context, id string) (*Referral, error)
	UpdateStatus(ctx context.Context, id string, status Status, notes *string, completedAt *time.Time) (*Referral, error)
	List(ctx context.Context, hospitalID string, filter ListFilter) ([]Referral, error)
	AppendHistory(ctx context.Context, change StatusChange) error
	History(ctx context.Context, referralID string) ([]StatusChange, error)
	WithTx(tx db.DBTX) RepositoryInterface
}

var _ RepositoryInterface = (*Repository)(nil)

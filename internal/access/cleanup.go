package access

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

// CleanupService permanently removes access grants that expired more than
// the retention period ago.
type CleanupService struct {
	db        db.DBTX
	retention time.Duration
	logger    *zap.Logger
}

func NewCleanupService(conn db.DBTX, retention time.Duration, logger *zap.Logger) *CleanupService {
	return &CleanupService{db: conn, retention: retention, logger: logger}
}

func (s *CleanupService) cutoff(now time.Time) time.Time {
	return now.Add(-s.retention)
}

// CleanupExpiredGrants deletes grants whose expires_at is before the cutoff.
func (s *CleanupService) CleanupExpiredGrants(ctx context.Context) (int64, error) {
	cutoff := s.cutoff(time.Now().UTC())
	s.logger.Info("starting cleanup of expired access grants", zap.Time("cutoff", cutoff))

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM referral.hospital_patient_access
		WHERE expires_at IS NOT NULL AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access grants: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up expired access grants", zap.Int64("deleted", deleted))
	return deleted, nil
}

// CountExpiredGrants returns how many grants a cleanup run would delete.
func (s *CleanupService) CountExpiredGrants(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referral.hospital_patient_access
		WHERE expires_at IS NOT NULL AND expires_at < $1
	`, s.cutoff(time.Now().UTC())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired access grants: %w", err)
	}
	return count, nil
}

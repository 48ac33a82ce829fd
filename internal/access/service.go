package access

import (
	"context"
	"fmt"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

// Service manages explicit grants. Every operation needs ADMIN on the patient.
type Service struct {
	repo RepositoryInterface
	gate GateInterface
}

func NewService(repo RepositoryInterface, gate GateInterface) *Service {
	return &Service{repo: repo, gate: gate}
}

func (s *Service) ListGrants(ctx context.Context, callerHospitalID, patientID string) ([]Grant, error) {
	if err := s.gate.RequirePatient(ctx, callerHospitalID, patientID, LevelAdmin); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrants(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access grants: %w", err)
	}
	return grants, nil
}

func (s *Service) GrantAccess(ctx context.Context, callerHospitalID, userID, patientID string, req GrantRequest) (*Grant, error) {
	if req.HospitalID == "" {
		return nil, fmt.Errorf("%w: hospitalId is required", apperrors.ErrValidation)
	}
	level, err := ParseLevel(req.AccessLevel)
	if err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiresAt must be in the future", apperrors.ErrValidation)
	}

	if err := s.gate.RequirePatient(ctx, callerHospitalID, patientID, LevelAdmin); err != nil {
		return nil, err
	}

	home, _, err := s.repo.PatientHome(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	if home == req.HospitalID {
		return nil, fmt.Errorf("%w: the home hospital already has full access", apperrors.ErrValidation)
	}

	grant, err := s.repo.UpsertGrant(ctx, patientID, userID, req.HospitalID, level, req.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to grant access: %w", err)
	}
	return grant, nil
}

func (s *Service) RevokeAccess(ctx context.Context, callerHospitalID, patientID, hospitalID string) error {
	if err := s.gate.RequirePatient(ctx, callerHospitalID, patientID, LevelAdmin); err != nil {
		return err
	}
	if err := s.repo.RevokeGrant(ctx, patientID, hospitalID); err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	return nil
}

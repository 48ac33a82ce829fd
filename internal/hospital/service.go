package hospital

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{2,32}$`)

type Service struct {
	repo RepositoryInterface
}

func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateHospital(ctx context.Context, req CreateHospitalRequest) (*HospitalResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if req.Name == "" {
		return nil, fmt.Errorf("%w: hospital name is required", apperrors.ErrValidation)
	}
	if !codePattern.MatchString(req.Code) {
		return nil, fmt.Errorf("%w: hospital code must be 2-32 characters of A-Z, 0-9 or '-'", apperrors.ErrValidation)
	}
	if req.ContactEmail != "" {
		if _, err := mail.ParseAddress(req.ContactEmail); err != nil {
			return nil, fmt.Errorf("%w: invalid contact email", apperrors.ErrValidation)
		}
	}

	h, err := s.repo.CreateHospital(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create hospital: %w", err)
	}
	return h, nil
}

func (s *Service) ListHospitals(ctx context.Context, params pagination.Params) (*PaginatedListResponse, error) {
	params.Validate()

	hospitals, total, err := s.repo.ListHospitals(ctx, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", err)
	}

	return &PaginatedListResponse{
		Success:    true,
		Hospitals:  hospitals,
		Pagination: params.CalculateMeta(total),
	}, nil
}

func (s *Service) GetHospital(ctx context.Context, id string) (*HospitalResponse, error) {
	h, err := s.repo.GetHospital(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return h, nil
}

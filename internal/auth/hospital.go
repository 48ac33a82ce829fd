package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

// HospitalHeader lets a SUPER_ADMIN choose the hospital it acts for on routes
// that carry no hospital in the path.
const HospitalHeader = "X-Hospital-ID"

// ActingHospital resolves the hospital a request acts for when the route names
// one. A SUPER_ADMIN may act for any hospital; everyone else only for their own.
func ActingHospital(ctx context.Context, pathHospital string) (*Principal, string, error) {
	pr, ok := FromContext(ctx)
	if !ok {
		return nil, "", apperrors.ErrUnauthenticated
	}
	if pathHospital == "" {
		return nil, "", fmt.Errorf("%w: hospital is required", apperrors.ErrValidation)
	}
	if pr.IsSuperAdmin() || pr.HospitalID == pathHospital {
		return pr, pathHospital, nil
	}
	return nil, "", fmt.Errorf("%w: not a member of hospital %s", apperrors.ErrForbidden, pathHospital)
}

// CallerHospital resolves the caller's hospital on routes without one in the
// path: the token's hospital, or the X-Hospital-ID header for a SUPER_ADMIN.
func CallerHospital(r *http.Request) (*Principal, string, error) {
	pr, ok := FromContext(r.Context())
	if !ok {
		return nil, "", apperrors.ErrUnauthenticated
	}
	if pr.IsSuperAdmin() {
		if h := r.Header.Get(HospitalHeader); h != "" {
			return pr, h, nil
		}
	}
	if pr.HospitalID == "" {
		return nil, "", fmt.Errorf("%w: hospital information not found in token", apperrors.ErrForbidden)
	}
	return pr, pr.HospitalID, nil
}

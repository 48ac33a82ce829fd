package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{"not found", fmt.Errorf("%w: referral r-1", ErrNotFound), http.StatusNotFound, "not_found"},
		{"validation", fmt.Errorf("%w: reason is required", ErrValidation), http.StatusBadRequest, "validation_error"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"conflict", fmt.Errorf("dispatch: %w", ErrConflict), http.StatusConflict, "conflict"},
		{"transition", fmt.Errorf("%w: COMPLETED -> PENDING", ErrInvalidTransition), http.StatusUnprocessableEntity, "invalid_state_transition"},
		{"no ambulance", ErrNoAvailableResource, http.StatusBadRequest, "no_available_resource"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, got)
			}
			if got := Code(tc.err); got != tc.code {
				t.Errorf("Expected code '%s', got '%s'", tc.code, got)
			}
		})
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(fmt.Errorf("wrapped: %w", ErrConflict)) {
		t.Error("Expected wrapped conflict to be known")
	}
	if IsKnown(errors.New("boom")) {
		t.Error("Expected arbitrary error to be unknown")
	}
}

package apperrors

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every domain package. Wrap with fmt.Errorf("%w: ...")
// to add context; handlers map the wrapped sentinel to a status code.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrNoAvailableResource = errors.New("no available resource")
	ErrUnauthenticated     = errors.New("unauthenticated")
)

type kind struct {
	err    error
	status int
	code   string
}

var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrValidation, http.StatusBadRequest, "validation_error"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrConflict, http.StatusConflict, "conflict"},
	{ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_state_transition"},
	{ErrNoAvailableResource, http.StatusBadRequest, "no_available_resource"},
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
}

// HTTPStatus returns the status code for err, or 500 for anything outside the taxonomy.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable error type used in JSON error bodies.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}

// IsKnown reports whether err belongs to the taxonomy and is safe to show to callers.
func IsKnown(err error) bool {
	return HTTPStatus(err) != http.StatusInternalServerError
}

package respond

import (
	"encoding/json"
	"net/http"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
	"go.uber.org/zap"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// ErrorMessage writes an error body without going through the taxonomy.
func ErrorMessage(w http.ResponseWriter, r *http.Request, statusCode int, errorType, message string) {
	JSON(w, statusCode, map[string]interface{}{
		"error":      errorType,
		"message":    message,
		"request_id": logging.RequestID(r.Context()),
	})
}

// Error maps err onto the error taxonomy. Unknown errors are logged with the
// request id and surfaced as a generic 500.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if !apperrors.IsKnown(err) {
		logging.For(r.Context(), logger).Error("unexpected error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ErrorMessage(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	ErrorMessage(w, r, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
}

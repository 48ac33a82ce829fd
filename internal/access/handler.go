package access

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/respond"
)

type Handler struct {
	service ServiceInterface
	logger  *zap.Logger
}

func NewHandler(service ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	grants, err := h.service.ListGrants(r.Context(), hospitalID, mux.Vars(r)["patientId"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

func (h *Handler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	grant, err := h.service.GrantAccess(r.Context(), hospitalID, principal.UserID, mux.Vars(r)["patientId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]interface{}{
		"grant":   grant,
		"message": "Access granted",
	})
}

func (h *Handler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	vars := mux.Vars(r)
	if err := h.service.RevokeAccess(r.Context(), hospitalID, vars["patientId"], vars["hospitalId"]); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

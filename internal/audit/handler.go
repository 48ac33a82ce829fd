package audit

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
	"github.com/WailSalutem-Health-Care/referral-service/internal/respond"
)

type Handler struct {
	service ServiceInterface
	logger  *zap.Logger
}

func NewHandler(service ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ListAccessLog(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.service.ListAccessLog(r.Context(), hospitalID, mux.Vars(r)["patientId"], pagination.ParseParams(r))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

package hospital

import (
	"encoding/json"
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

type SuccessResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Hospital *HospitalResponse `json:"hospital,omitempty"`
}

func (h *Handler) CreateHospital(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		respond.ErrorMessage(w, r, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	var req CreateHospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	hospital, err := h.service.CreateHospital(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, SuccessResponse{
		Success:  true,
		Message:  "Hospital created successfully",
		Hospital: hospital,
	})
}

func (h *Handler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		respond.ErrorMessage(w, r, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	response, err := h.service.ListHospitals(r.Context(), pagination.ParseParams(r))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, response)
}

func (h *Handler) GetHospital(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		respond.ErrorMessage(w, r, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	hospital, err := h.service.GetHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, SuccessResponse{
		Success:  true,
		Message:  "Hospital retrieved successfully",
		Hospital: hospital,
	})
}

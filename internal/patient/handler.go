package patient

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

type PatientSuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Patient *View  `json:"patient,omitempty"`
}

func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req RegisterPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	view, err := h.service.RegisterPatient(r.Context(), hospitalID, principal.UserID, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, PatientSuccessResponse{
		Success: true,
		Message: "Patient registered successfully",
		Patient: view,
	})
}

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.service.ListPatients(r.Context(), hospitalID, pagination.ParseParams(r))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	view, err := h.service.GetPatient(r.Context(), hospitalID, principal.UserID, mux.Vars(r)["patientId"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, PatientSuccessResponse{
		Success: true,
		Message: "Patient retrieved successfully",
		Patient: view,
	})
}

func (h *Handler) GetPatientByMRN(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	view, err := h.service.GetPatientByMRN(r.Context(), hospitalID, principal.UserID, mux.Vars(r)["mrn"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, PatientSuccessResponse{
		Success: true,
		Message: "Patient retrieved successfully",
		Patient: view,
	})
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	view, err := h.service.UpdatePatient(r.Context(), hospitalID, principal.UserID, mux.Vars(r)["patientId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, PatientSuccessResponse{
		Success: true,
		Message: "Patient updated successfully",
		Patient: view,
	})
}

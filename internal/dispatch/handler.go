package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
	"github.com/WailSalutem-Health-Care/referral-service/internal/respond"
)

type Handler struct {
	service ServiceInterface
	logger  *zap.Logger
}

func NewHandler(service ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RequestDispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	principal, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req RequestDispatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
			return
		}
	}

	d, err := h.service.RequestDispatch(r.Context(), referral.Actor{UserID: principal.UserID, HospitalID: hospitalID}, vars["referralId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, DispatchResponse{
		Success:  true,
		Message:  "Ambulance dispatched successfully",
		Dispatch: d,
	})
}

func (h *Handler) GetDispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	d, err := h.service.GetDispatch(r.Context(), hospitalID, vars["referralId"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, DispatchResponse{
		Success:  true,
		Message:  "Dispatch retrieved successfully",
		Dispatch: d,
	})
}

func (h *Handler) UpdateDispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	principal, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req UpdateDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	d, err := h.service.UpdateDispatch(r.Context(), referral.Actor{UserID: principal.UserID, HospitalID: hospitalID}, vars["referralId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, DispatchResponse{
		Success:  true,
		Message:  "Dispatch updated successfully",
		Dispatch: d,
	})
}

func (h *Handler) ListAmbulances(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	ambulances, err := h.service.ListAmbulances(r.Context(), hospitalID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, AmbulanceListResponse{Success: true, Ambulances: ambulances})
}

func (h *Handler) CreateAmbulance(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req CreateAmbulanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	amb, err := h.service.CreateAmbulance(r.Context(), hospitalID, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, AmbulanceResponse{
		Success:   true,
		Message:   "Ambulance registered successfully",
		Ambulance: amb,
	})
}

func (h *Handler) SetAmbulanceStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req UpdateAmbulanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	amb, err := h.service.SetAmbulanceStatus(r.Context(), hospitalID, vars["ambulanceId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, AmbulanceResponse{
		Success:   true,
		Message:   "Ambulance status updated successfully",
		Ambulance: amb,
	})
}

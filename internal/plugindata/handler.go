package plugindata

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

func (h *Handler) GetPluginData(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	entry, err := h.service.GetPluginData(r.Context(), Actor{UserID: principal.UserID, HospitalID: hospitalID},
		mux.Vars(r)["patientId"], r.URL.Query().Get("plugin"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, PluginDataResponse{Success: true, Entry: entry})
}

func (h *Handler) SetPluginData(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.CallerHospital(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req SetPluginDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	entry, err := h.service.SetPluginData(r.Context(), Actor{UserID: principal.UserID, HospitalID: hospitalID},
		mux.Vars(r)["patientId"], r.URL.Query().Get("plugin"), req.Data)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, PluginDataResponse{
		Success: true,
		Message: "Plugin data saved successfully",
		Entry:   entry,
	})
}

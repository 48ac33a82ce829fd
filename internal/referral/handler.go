package referral

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/respond"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service ServiceInterface
	logger  *zap.Logger
}

func NewHandler(service ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{PatientID: strings.TrimSpace(q.Get("patientId"))}
	if raw := q.Get("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return ListFilter{}, err
		}
		filter.Status = st
	}
	return filter, nil
}

func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	refs, err := h.service.ListReferrals(r.Context(), hospitalID, filter)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ReferralListResponse{Success: true, Referrals: refs})
}

func (h *Handler) CreateReferral(w http.ResponseWriter, r *http.Request) {
	principal, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req CreateReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	ref, err := h.service.CreateReferral(r.Context(), Actor{UserID: principal.UserID, HospitalID: hospitalID}, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, ReferralResponse{
		Success:  true,
		Message:  "Referral created successfully",
		Referral: ref,
	})
}

func (h *Handler) GetReferral(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	ref, err := h.service.GetReferral(r.Context(), hospitalID, vars["referralId"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ReferralResponse{
		Success:  true,
		Message:  "Referral retrieved successfully",
		Referral: ref,
	})
}

func (h *Handler) UpdateReferral(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	principal, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var req UpdateReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	ref, err := h.service.UpdateReferral(r.Context(), Actor{UserID: principal.UserID, HospitalID: hospitalID}, vars["referralId"], req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ReferralResponse{
		Success:  true,
		Message:  "Referral updated successfully",
		Referral: ref,
	})
}

// CancelReferral handles DELETE. An optional {"notes": "..."} body is recorded
// in the history.
func (h *Handler) CancelReferral(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	principal, hospitalID, err := auth.ActingHospital(r.Context(), vars["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	var body struct {
		Notes *string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respond.ErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
			return
		}
	}

	ref, err := h.service.CancelReferral(r.Context(), Actor{UserID: principal.UserID, HospitalID: hospitalID}, vars["referralId"], body.Notes)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ReferralResponse{
		Success:  true,
		Message:  "Referral cancelled successfully",
		Referral: ref,
	})
}

func (h *Handler) ExportReferrals(w http.ResponseWriter, r *http.Request) {
	_, hospitalID, err := auth.ActingHospital(r.Context(), mux.Vars(r)["hospital"])
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	data, err := h.service.ExportReferrals(r.Context(), hospitalID, filter)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=referrals-%s.xlsx", hospitalID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write referral export", zap.Error(err))
	}
}

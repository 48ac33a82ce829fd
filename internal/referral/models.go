package referral

import (
	"fmt"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type Priority string

const (
	PriorityRoutine   Priority = "ROUTINE"
	PriorityUrgent    Priority = "URGENT"
	PriorityEmergency Priority = "EMERGENCY"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown referral status %q", apperrors.ErrValidation, s)
}

// ParsePriority defaults an empty priority to ROUTINE.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityRoutine, nil
	case PriorityRoutine, PriorityUrgent, PriorityEmergency:
		return p, nil
	}
	return "", fmt.Errorf("%w: priority must be ROUTINE, URGENT or EMERGENCY", apperrors.ErrValidation)
}

type Referral struct {
	ID                string         `json:"id"`
	ReferralCode      string         `json:"referralCode"`
	PatientID         string         `json:"patientId"`
	FromHospitalID    string         `json:"fromHospitalId"`
	ToHospitalID      string         `json:"toHospitalId"`
	Reason            string         `json:"reason"`
	Notes             string         `json:"notes,omitempty"`
	Priority          Priority       `json:"priority"`
	Status            Status         `json:"status"`
	RequiresAmbulance bool           `json:"requiresAmbulance"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	CreatedByUserID   string         `json:"createdBy"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	History           []StatusChange `json:"history,omitempty"`
}

// IsParty reports whether hospitalID sent or received the referral.
func (r *Referral) IsParty(hospitalID string) bool {
	return hospitalID != "" && (hospitalID == r.FromHospitalID || hospitalID == r.ToHospitalID)
}

// StatusChange is one row of the append-only status history.
type StatusChange struct {
	Seq                 int64     `json:"seq"`
	ReferralID          string    `json:"referralId"`
	FromStatus          Status    `json:"fromStatus,omitempty"`
	ToStatus            Status    `json:"toStatus"`
	ChangedByUserID     string    `json:"changedBy"`
	ChangedByHospitalID string    `json:"changedByHospitalId"`
	Notes               string    `json:"notes,omitempty"`
	ChangedAt           time.Time `json:"changedAt"`
}

type CreateReferralRequest struct {
	PatientID         string `json:"patientId"`
	ToHospitalID      string `json:"toHospitalId"`
	Reason            string `json:"reason"`
	Notes             string `json:"notes,omitempty"`
	Priority          string `json:"priority,omitempty"`
	RequiresAmbulance bool   `json:"requiresAmbulance"`
}

type UpdateReferralRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// ListFilter narrows a hospital's referrals. Set fields are combined with AND.
type ListFilter struct {
	Status    Status
	PatientID string
}

// Actor identifies who performs a state change.
type Actor struct {
	UserID     string
	HospitalID string
}

// CancelledDispatch describes a dispatch cancelled as part of a referral
// cancellation.
type CancelledDispatch struct {
	DispatchID  string
	AmbulanceID string
	OldStatus   string
}

type ReferralResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Referral *Referral `json:"referral,omitempty"`
}

type ReferralListResponse struct {
	Success   bool       `json:"success"`
	Referrals []Referral `json:"referrals"`
}

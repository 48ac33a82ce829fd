package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

type AmbulanceStatus string

const (
	AmbulanceAvailable    AmbulanceStatus = "AVAILABLE"
	AmbulanceDispatched   AmbulanceStatus = "DISPATCHED"
	AmbulanceOutOfService AmbulanceStatus = "OUT_OF_SERVICE"
)

type Status string

const (
	StatusDispatched Status = "DISPATCHED"
	StatusEnRoute    Status = "EN_ROUTE"
	StatusArrived    Status = "ARRIVED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

const defaultVehicleType = "STANDARD"

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusDispatched, StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown dispatch status %q", apperrors.ErrValidation, s)
}

type Ambulance struct {
	ID          string          `json:"id"`
	HospitalID  string          `json:"hospitalId"`
	CallSign    string          `json:"callSign"`
	VehicleType string          `json:"vehicleType"`
	Status      AmbulanceStatus `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// Dispatch is the single ambulance dispatch of a referral.
type Dispatch struct {
	ID               string     `json:"id"`
	ReferralID       string     `json:"referralId"`
	AmbulanceID      string     `json:"ambulanceId"`
	Status           Status     `json:"status"`
	DispatchTime     time.Time  `json:"dispatchTime"`
	EstimatedArrival time.Time  `json:"estimatedArrival"`
	PickupLocation   string     `json:"pickupLocation,omitempty"`
	DropoffLocation  string     `json:"dropoffLocation,omitempty"`
	CurrentLocation  string     `json:"currentLocation,omitempty"`
	DriverName       string     `json:"driverName,omitempty"`
	DriverPhone      string     `json:"driverPhone,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type RequestDispatchRequest struct {
	PickupLocation  string `json:"pickupLocation"`
	DropoffLocation string `json:"dropoffLocation"`
	Notes           string `json:"notes"`
}

type UpdateDispatchRequest struct {
	Status          string  `json:"status,omitempty"`
	CurrentLocation *string `json:"currentLocation,omitempty"`
	DriverName      *string `json:"driverName,omitempty"`
	DriverPhone     *string `json:"driverPhone,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// Changes is applied by Repository.UpdateDispatch. Nil fields are left as is.
type Changes struct {
	Status          Status
	CurrentLocation *string
	DriverName      *string
	DriverPhone     *string
	Notes           *string
	CompletedAt     *time.Time
}

type CreateAmbulanceRequest struct {
	CallSign    string `json:"callSign"`
	VehicleType string `json:"vehicleType"`
}

type UpdateAmbulanceStatusRequest struct {
	Status string `json:"status"`
}

type DispatchResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Dispatch *Dispatch `json:"dispatch,omitempty"`
}

type AmbulanceResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Ambulance *Ambulance `json:"ambulance,omitempty"`
}

type AmbulanceListResponse struct {
	Success    bool        `json:"success"`
	Ambulances []Ambulance `json:"ambulances"`
}

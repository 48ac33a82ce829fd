package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys as constants
const (
	EventPatientRegistered = "patient.registered"

	EventReferralCreated       = "referral.created"
	EventReferralStatusChanged = "referral.status_changed"

	EventDispatchCreated       = "dispatch.created"
	EventDispatchStatusChanged = "dispatch.status_changed"

	EventPluginDataUpdated = "plugin_data.updated"
)

const ServiceName = "referral-service"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: ServiceName,
	}
}

type PatientRegisteredEvent struct {
	BaseEvent
	Data PatientRegisteredData `json:"data"`
}

type PatientRegisteredData struct {
	PatientID  string    `json:"patient_id"`
	MRN        string    `json:"mrn"`
	HospitalID string    `json:"hospital_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReferralCreatedEvent struct {
	BaseEvent
	Data ReferralCreatedData `json:"data"`
}

type ReferralCreatedData struct {
	ReferralID        string    `json:"referral_id"`
	ReferralCode      string    `json:"referral_code"`
	PatientID         string    `json:"patient_id"`
	FromHospitalID    string    `json:"from_hospital_id"`
	ToHospitalID      string    `json:"to_hospital_id"`
	Priority          string    `json:"priority"`
	RequiresAmbulance bool      `json:"requires_ambulance"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type ReferralStatusChangedEvent struct {
	BaseEvent
	Data ReferralStatusChangedData `json:"data"`
}

type ReferralStatusChangedData struct {
	ReferralID        string    `json:"referral_id"`
	FromHospitalID    string    `json:"from_hospital_id"`
	ToHospitalID      string    `json:"to_hospital_id"`
	OldStatus         string    `json:"old_status"`
	NewStatus         string    `json:"new_status"`
	ChangedByHospital string    `json:"changed_by_hospital"`
	ChangedBy         string    `json:"changed_by"`
	ChangedAt         time.Time `json:"changed_at"`
}

type DispatchCreatedEvent struct {
	BaseEvent
	Data DispatchCreatedData `json:"data"`
}

type DispatchCreatedData struct {
	DispatchID       string    `json:"dispatch_id"`
	ReferralID       string    `json:"referral_id"`
	AmbulanceID      string    `json:"ambulance_id"`
	HospitalID       string    `json:"hospital_id"`
	DispatchTime     time.Time `json:"dispatch_time"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
}

type DispatchStatusChangedEvent struct {
	BaseEvent
	Data DispatchStatusChangedData `json:"data"`
}

type DispatchStatusChangedData struct {
	DispatchID  string    `json:"dispatch_id"`
	ReferralID  string    `json:"referral_id"`
	AmbulanceID string    `json:"ambulance_id"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ChangedAt   time.Time `json:"changed_at"`
}

type PluginDataUpdatedEvent struct {
	BaseEvent
	Data PluginDataUpdatedData `json:"data"`
}

type PluginDataUpdatedData struct {
	PatientID  string    `json:"patient_id"`
	PluginName string    `json:"plugin_name"`
	HospitalID string    `json:"hospital_id,omitempty"`
	UpdatedBy  string    `json:"updated_by"`
	Created    bool      `json:"created"`
	UpdatedAt  time.Time `json:"updated_at"`
}

package patient

import (
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/identity"
	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// MedicalHistory is stored as JSONB on the patient row.
type MedicalHistory struct {
	Allergies         []string `json:"allergies"`
	ChronicConditions []string `json:"chronicConditions"`
	Notes             string   `json:"notes,omitempty"`
}

// RegisterPatientRequest represents the request to register a patient at a hospital
type RegisterPatientRequest struct {
	FirstName      string            `json:"firstName"`
	LastName       string            `json:"lastName"`
	BirthDate      string            `json:"birthDate"` // Format: YYYY-MM-DD
	Gender         string            `json:"gender"`
	Emails         []string          `json:"emails"`
	Phones         []string          `json:"phones"`
	Address        *identity.Address `json:"address,omitempty"`
	MedicalHistory *MedicalHistory   `json:"medicalHistory,omitempty"`
}

// UpdatePatientRequest represents a partial update. There is no
// MRN or QR code field: both are fixed at registration.
type UpdatePatientRequest struct {
	FirstName      *string           `json:"firstName,omitempty"`
	LastName       *string           `json:"lastName,omitempty"`
	BirthDate      *string           `json:"birthDate,omitempty"`
	Gender         *string           `json:"gender,omitempty"`
	Emails         []string          `json:"emails,omitempty"`
	Phones         []string          `json:"phones,omitempty"`
	Address        *identity.Address `json:"address,omitempty"`
	MedicalHistory *MedicalHistory   `json:"medicalHistory,omitempty"`
}

// Record is a patient row as stored, with the FHIR columns still raw.
type Record struct {
	ID             string
	MRN            string
	Name           []byte
	Telecom        []byte
	Address        []byte
	MedicalHistory []byte
	BirthDate      *time.Time
	Gender         string
	HospitalID     string
	QRCode         string
	Emails         []identity.ContactRecord
	Phones         []identity.ContactRecord
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// NewRecord is what the service hands the repository on registration.
type NewRecord struct {
	ID             string
	MRN            string
	QRCode         string
	Name           []byte
	Telecom        []byte
	Address        []byte
	MedicalHistory []byte
	BirthDate      *time.Time
	Gender         string
	HospitalID     string
	Emails         []string
	Phones         []string
}

// Changes is a column-level update. Nil fields are left untouched; Emails and
// Phones replace the child rows when non-nil.
type Changes struct {
	Name           []byte
	Telecom        []byte
	Address        []byte
	MedicalHistory []byte
	BirthDate      *time.Time
	Gender         *string
	Emails         []string
	Phones         []string
}

// View is the canonical patient representation returned by the API.
type View struct {
	ID             string                  `json:"id"`
	MRN            string                  `json:"mrn"`
	MedicalID      string                  `json:"medicalId"`
	FirstName      string                  `json:"firstName"`
	LastName       string                  `json:"lastName"`
	FullName       string                  `json:"fullName"`
	Name           []identity.HumanName    `json:"name"`
	Telecom        []identity.ContactPoint `json:"telecom"`
	Address        []identity.Address      `json:"address"`
	Contacts       identity.Contacts       `json:"contacts"`
	MedicalHistory MedicalHistory          `json:"medicalHistory"`
	BirthDate      string                  `json:"birthDate,omitempty"`
	Gender         string                  `json:"gender,omitempty"`
	HospitalID     string                  `json:"hospitalId,omitempty"`
	QRCode         string                  `json:"qrCode,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      *time.Time              `json:"updatedAt,omitempty"`
}

type PaginatedPatientListResponse struct {
	Success    bool            `json:"success"`
	Patients   []View          `json:"patients"`
	Pagination pagination.Meta `json:"pagination"`
}

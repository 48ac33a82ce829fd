package plugindata

import (
	"encoding/json"
	"time"
)

const (
	StatusFound    = "FOUND"
	StatusNotFound = "NOT_FOUND"
)

// Entry is the plugin payload stored for one patient. A patient without a
// stored payload gets an Entry with Status NOT_FOUND and empty Data.
type Entry struct {
	PatientID           string          `json:"patientId"`
	PluginName          string          `json:"pluginName"`
	Data                json.RawMessage `json:"data"`
	Status              string          `json:"status"`
	CreatedBy           string          `json:"createdBy,omitempty"`
	CreatedByHospitalID string          `json:"createdByHospitalId,omitempty"`
	UpdatedBy           string          `json:"updatedBy,omitempty"`
	UpdatedByHospitalID string          `json:"updatedByHospitalId,omitempty"`
	CreatedAt           *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt           *time.Time      `json:"updatedAt,omitempty"`
}

func emptyEntry(patientID, pluginName string) *Entry {
	return &Entry{
		PatientID:  patientID,
		PluginName: pluginName,
		Data:       json.RawMessage(`{}`),
		Status:     StatusNotFound,
	}
}

// Actor is the user and hospital performing a read or write.
type Actor struct {
	UserID     string
	HospitalID string
}

type SetPluginDataRequest struct {
	Data json.RawMessage `json:"data"`
}

// Upsert is the write applied by Repository.Upsert.
type Upsert struct {
	ID         string
	PatientID  string
	PluginName string
	Data       json.RawMessage
	UserID     string
	HospitalID string
}

type PluginDataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	*Entry
}

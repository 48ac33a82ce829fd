package audit

import (
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// Actions written to the patient access log.
const (
	ActionViewPatient     = "VIEW_PATIENT"
	ActionUpdatePatient   = "UPDATE_PATIENT"
	ActionRegisterPatient = "REGISTER_PATIENT"
	ActionReadPluginData  = "READ_PLUGIN_DATA"
	ActionWritePluginData = "WRITE_PLUGIN_DATA"
	ActionGrantAccess     = "GRANT_ACCESS"
	ActionRevokeAccess    = "REVOKE_ACCESS"
)

// Entry is a single access to patient data.
type Entry struct {
	PatientID  string
	HospitalID string
	UserID     string
	Action     string
	PluginName string
	Context    map[string]interface{}
}

type LogEntry struct {
	Seq        int64                  `json:"seq"`
	PatientID  string                 `json:"patientId"`
	HospitalID string                 `json:"hospitalId,omitempty"`
	UserID     string                 `json:"userId"`
	Action     string                 `json:"action"`
	PluginName string                 `json:"pluginName,omitempty"`
	Context    map[string]interface{} `json:"context"`
	CreatedAt  time.Time              `json:"createdAt"`
}

type PaginatedLogResponse struct {
	Success    bool            `json:"success"`
	Entries    []LogEntry      `json:"entries"`
	Pagination pagination.Meta `json:"pagination"`
}

package hospital

import (
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// CreateHospitalRequest represents the request to provision a new hospital
type CreateHospitalRequest struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Address      string `json:"address"`
}

// HospitalResponse represents the hospital data returned to clients
type HospitalResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Code         string     `json:"code"`
	ContactEmail string     `json:"contact_email"`
	ContactPhone string     `json:"contact_phone"`
	Address      string     `json:"address"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type PaginatedListResponse struct {
	Success    bool               `json:"success"`
	Hospitals  []HospitalResponse `json:"hospitals"`
	Pagination pagination.Meta    `json:"pagination"`
}

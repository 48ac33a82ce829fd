package access

import (
	"fmt"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

// Level is a hospital's access level on a patient. Higher levels include lower ones.
type Level string

const (
	LevelRead  Level = "READ"
	LevelWrite Level = "WRITE"
	LevelAdmin Level = "ADMIN"
)

func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelAdmin:
		return 3
	}
	return 0
}

// Covers reports whether l grants at least required.
func (l Level) Covers(required Level) bool {
	return l.rank() > 0 && l.rank() >= required.rank()
}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.rank() == 0 {
		return "", fmt.Errorf("%w: access level must be READ, WRITE or ADMIN", apperrors.ErrValidation)
	}
	return l, nil
}

// Grant is an explicit HospitalPatientAccess row.
type Grant struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patientId"`
	HospitalID string     `json:"hospitalId"`
	Level      Level      `json:"accessLevel"`
	GrantedAt  time.Time  `json:"grantedAt"`
	GrantedBy  string     `json:"grantedBy"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type GrantRequest struct {
	HospitalID  string     `json:"hospitalId"`
	AccessLevel string     `json:"accessLevel"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ReferralParties is implemented by referrals so the gate can check membership
// without depending on the referral package.
type ReferralParties interface {
	IsParty(hospitalID string) bool
}

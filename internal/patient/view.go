package patient

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/identity"
)

const birthDateLayout = "2006-01-02"

// BuildView normalizes a stored record. Malformed FHIR columns degrade to
// empty lists and are logged; a view is always produced.
func BuildView(rec *Record, logger *zap.Logger) View {
	names, err := identity.DecodeNames(rec.Name)
	if err != nil {
		logger.Warn("malformed patient name", zap.String("patient_id", rec.ID), zap.Error(err))
	}
	telecom, err := identity.DecodeTelecom(rec.Telecom)
	if err != nil {
		logger.Warn("malformed patient telecom", zap.String("patient_id", rec.ID), zap.Error(err))
	}
	addresses, err := identity.DecodeAddresses(rec.Address)
	if err != nil {
		logger.Warn("malformed patient address", zap.String("patient_id", rec.ID), zap.Error(err))
	}

	name := identity.ParseName(rec.Name, logger)

	history := MedicalHistory{Allergies: []string{}, ChronicConditions: []string{}}
	if len(rec.MedicalHistory) > 0 {
		if err := json.Unmarshal(rec.MedicalHistory, &history); err != nil {
			logger.Warn("malformed medical history", zap.String("patient_id", rec.ID), zap.Error(err))
		}
		if history.Allergies == nil {
			history.Allergies = []string{}
		}
		if history.ChronicConditions == nil {
			history.ChronicConditions = []string{}
		}
	}

	v := View{
		ID:         rec.ID,
		MRN:        rec.MRN,
		MedicalID:  identity.ResolveMedicalID(rec.MRN),
		FirstName:  name.FirstName,
		LastName:   name.LastName,
		FullName:   name.FullName,
		Name:       orEmpty(names),
		Telecom:    orEmpty(telecom),
		Address:    orEmpty(addresses),
		Contacts: identity.MergeContactSources(identity.ContactSources{
			Emails:  rec.Emails,
			Phones:  rec.Phones,
			Telecom: telecom,
		}),
		MedicalHistory: history,
		Gender:         rec.Gender,
		HospitalID:     rec.HospitalID,
		QRCode:         rec.QRCode,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.BirthDate != nil {
		v.BirthDate = rec.BirthDate.Format(birthDateLayout)
	}
	return v
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

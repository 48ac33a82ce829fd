package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/audit"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/identity"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// maxMRNAttempts bounds retries on MRN collisions.
const maxMRNAttempts = 5

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

type Service struct {
	repo      RepositoryInterface
	tx        db.TxRunner
	gate      access.GateInterface
	cache     ViewCache
	audit     audit.RecorderInterface
	publisher messaging.PublisherInterface
	logger    *zap.Logger
	newMRN    identity.MRNGenerator
}

func NewService(
	repo RepositoryInterface,
	tx db.TxRunner,
	gate access.GateInterface,
	cache ViewCache,
	recorder audit.RecorderInterface,
	publisher messaging.PublisherInterface,
	logger *zap.Logger,
) *Service {
	if cache == nil {
		cache = NopViewCache{}
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		repo:      repo,
		tx:        tx,
		gate:      gate,
		cache:     cache,
		audit:     recorder,
		publisher: publisher,
		logger:    logger,
		newMRN:    identity.GenerateMRN,
	}
}

// RegisterPatient creates a patient homed at hospitalID. The MRN and QR code
// are assigned here and never again.
func (s *Service) RegisterPatient(ctx context.Context, hospitalID, userID string, req RegisterPatientRequest) (*View, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		return nil, fmt.Errorf("%w: firstName and lastName are required", apperrors.ErrValidation)
	}
	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return nil, err
	}
	gender, err := normalizeGender(req.Gender)
	if err != nil {
		return nil, err
	}
	if err := validateEmails(req.Emails); err != nil {
		return nil, err
	}

	name, err := identity.Canonical(identity.ToHumanNames(req.FirstName, req.LastName))
	if err != nil {
		return nil, fmt.Errorf("failed to encode name: %w", err)
	}
	telecom, err := canonicalTelecom(req.Emails, req.Phones)
	if err != nil {
		return nil, err
	}
	address, err := canonicalAddress(req.Address)
	if err != nil {
		return nil, err
	}
	history, err := encodeHistory(req.MedicalHistory)
	if err != nil {
		return nil, err
	}

	var rec *Record
	for attempt := 1; ; attempt++ {
		mrn, _, err := identity.AssignMRN("", s.newMRN)
		if err != nil {
			return nil, fmt.Errorf("failed to generate MRN: %w", err)
		}

		err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
			var err error
			rec, err = s.repo.WithTx(tx).Insert(ctx, NewRecord{
				ID:             uuid.NewString(),
				MRN:            mrn,
				QRCode:         identity.QRPayload(mrn),
				Name:           name,
				Telecom:        telecom,
				Address:        address,
				MedicalHistory: history,
				BirthDate:      birthDate,
				Gender:         gender,
				HospitalID:     hospitalID,
				Emails:         orNoContacts(req.Emails),
				Phones:         orNoContacts(req.Phones),
			})
			return err
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrMRNTaken) && attempt < maxMRNAttempts {
			logging.For(ctx, s.logger).Info("MRN collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		return nil, fmt.Errorf("failed to register patient: %w", err)
	}

	view := BuildView(rec, s.logger)

	messaging.PublishBestEffort(ctx, s.publisher, s.logger, messaging.EventPatientRegistered, messaging.PatientRegisteredEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPatientRegistered),
		Data: messaging.PatientRegisteredData{
			PatientID:  rec.ID,
			MRN:        rec.MRN,
			HospitalID: rec.HospitalID,
			CreatedAt:  rec.CreatedAt,
		},
	})
	s.audit.Record(ctx, audit.Entry{
		PatientID:  rec.ID,
		HospitalID: hospitalID,
		UserID:     userID,
		Action:     audit.ActionRegisterPatient,
	})

	return &view, nil
}

func (s *Service) GetPatient(ctx context.Context, callerHospitalID, userID, id string) (*View, error) {
	if err := s.gate.RequirePatient(ctx, callerHospitalID, id, access.LevelRead); err != nil {
		return nil, err
	}

	view, ok := s.cache.Get(ctx, id)
	if !ok {
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get patient: %w", err)
		}
		if err := s.ensureMRN(ctx, rec); err != nil {
			return nil, err
		}
		v := BuildView(rec, s.logger)
		s.cache.Set(ctx, v)
		view = &v
	}

	s.audit.Record(ctx, audit.Entry{
		PatientID:  id,
		HospitalID: callerHospitalID,
		UserID:     userID,
		Action:     audit.ActionViewPatient,
	})
	return view, nil
}

// GetPatientByMRN is the cross-hospital lookup. Visibility follows the gate,
// so under the strict policy only hospitals with access find the patient.
func (s *Service) GetPatientByMRN(ctx context.Context, callerHospitalID, userID, mrn string) (*View, error) {
	rec, err := s.repo.GetByMRN(ctx, mrn)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	ok, err := s.gate.CanAccessPatient(ctx, callerHospitalID, rec.ID, access.LevelRead)
	if err != nil {
		return nil, fmt.Errorf("failed to check patient access: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: patient with MRN %s", apperrors.ErrNotFound, mrn)
	}

	view := BuildView(rec, s.logger)
	s.audit.Record(ctx, audit.Entry{
		PatientID:  rec.ID,
		HospitalID: callerHospitalID,
		UserID:     userID,
		Action:     audit.ActionViewPatient,
		Context:    map[string]interface{}{"lookup": "mrn"},
	})
	return &view, nil
}

// ListPatients lists the patients homed at hospitalID.
func (s *Service) ListPatients(ctx context.Context, hospitalID string, params pagination.Params) (*PaginatedPatientListResponse, error) {
	params.Validate()

	records, total, err := s.repo.ListByHospital(ctx, hospitalID, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	views := make([]View, 0, len(records))
	for i := range records {
		if err := s.ensureMRN(ctx, &records[i]); err != nil {
			return nil, err
		}
		views = append(views, BuildView(&records[i], s.logger))
	}

	return &PaginatedPatientListResponse{
		Success:    true,
		Patients:   views,
		Pagination: params.CalculateMeta(total),
	}, nil
}

// UpdatePatient applies a partial update. The MRN and QR code are not
// updatable through any field.
func (s *Service) UpdatePatient(ctx context.Context, callerHospitalID, userID, id string, req UpdatePatientRequest) (*View, error) {
	if err := s.gate.RequirePatient(ctx, callerHospitalID, id, access.LevelWrite); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	ch, err := s.buildChanges(current, req)
	if err != nil {
		return nil, err
	}

	var rec *Record
	err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		var err error
		rec, err = s.repo.WithTx(tx).Update(ctx, id, ch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	if err := s.ensureMRN(ctx, rec); err != nil {
		return nil, err
	}
	view := BuildView(rec, s.logger)

	s.audit.Record(ctx, audit.Entry{
		PatientID:  id,
		HospitalID: callerHospitalID,
		UserID:     userID,
		Action:     audit.ActionUpdatePatient,
	})
	return &view, nil
}

func (s *Service) buildChanges(current *Record, req UpdatePatientRequest) (Changes, error) {
	var ch Changes

	if req.FirstName != nil || req.LastName != nil {
		name := identity.ParseName(current.Name, s.logger)
		first, last := name.FirstName, name.LastName
		if req.FirstName != nil {
			first = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			last = strings.TrimSpace(*req.LastName)
		}
		if first == "" || last == "" {
			return ch, fmt.Errorf("%w: firstName and lastName cannot be empty", apperrors.ErrValidation)
		}
		raw, err := identity.Canonical(identity.ToHumanNames(first, last))
		if err != nil {
			return ch, fmt.Errorf("failed to encode name: %w", err)
		}
		ch.Name = raw
	}

	if req.BirthDate != nil {
		bd, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			return ch, err
		}
		if bd == nil {
			return ch, fmt.Errorf("%w: birthDate cannot be cleared", apperrors.ErrValidation)
		}
		ch.BirthDate = bd
	}
	if req.Gender != nil {
		g, err := normalizeGender(*req.Gender)
		if err != nil {
			return ch, err
		}
		ch.Gender = &g
	}

	if req.Emails != nil || req.Phones != nil {
		if err := validateEmails(req.Emails); err != nil {
			return ch, err
		}
		ch.Emails = req.Emails
		ch.Phones = req.Phones

		emails := req.Emails
		if emails == nil {
			emails = contactValues(current.Emails)
		}
		phones := req.Phones
		if phones == nil {
			phones = contactValues(current.Phones)
		}
		raw, err := canonicalTelecom(emails, phones)
		if err != nil {
			return ch, err
		}
		if raw == nil {
			raw = []byte("[]")
		}
		ch.Telecom = raw
	}

	if req.Address != nil {
		raw, err := canonicalAddress(req.Address)
		if err != nil {
			return ch, err
		}
		ch.Address = raw
	}
	if req.MedicalHistory != nil {
		raw, err := encodeHistory(req.MedicalHistory)
		if err != nil {
			return ch, err
		}
		ch.MedicalHistory = raw
	}
	return ch, nil
}

// ensureMRN gives a legacy patient without an MRN one, exactly once. A
// concurrent assignment wins and is reloaded.
func (s *Service) ensureMRN(ctx context.Context, rec *Record) error {
	for attempt := 1; ; attempt++ {
		mrn, assigned, err := identity.AssignMRN(rec.MRN, s.newMRN)
		if err != nil {
			return fmt.Errorf("failed to generate MRN: %w", err)
		}
		if !assigned {
			return nil
		}

		ok, err := s.repo.AssignMRN(ctx, rec.ID, mrn, identity.QRPayload(mrn))
		if errors.Is(err, ErrMRNTaken) && attempt < maxMRNAttempts {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to assign MRN: %w", err)
		}

		if !ok {
			fresh, err := s.repo.Get(ctx, rec.ID)
			if err != nil {
				return fmt.Errorf("failed to reload patient: %w", err)
			}
			rec.MRN, rec.QRCode = fresh.MRN, fresh.QRCode
			return nil
		}

		logging.For(ctx, s.logger).Info("assigned MRN to legacy patient", zap.String("patient_id", rec.ID))
		rec.MRN = mrn
		if rec.QRCode == "" {
			rec.QRCode = identity.QRPayload(mrn)
		}
		return nil
	}
}

func parseBirthDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(birthDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: birthDate must be YYYY-MM-DD", apperrors.ErrValidation)
	}
	if t.After(time.Now()) {
		return nil, fmt.Errorf("%w: birthDate cannot be in the future", apperrors.ErrValidation)
	}
	return &t, nil
}

func normalizeGender(g string) (string, error) {
	g = strings.ToLower(strings.TrimSpace(g))
	if g == "" {
		return "", nil
	}
	if !validGenders[g] {
		return "", fmt.Errorf("%w: gender must be male, female, other or unknown", apperrors.ErrValidation)
	}
	return g, nil
}

func validateEmails(emails []string) error {
	for _, e := range emails {
		if strings.TrimSpace(e) == "" {
			continue
		}
		if _, err := mail.ParseAddress(e); err != nil {
			return fmt.Errorf("%w: invalid email %q", apperrors.ErrValidation, e)
		}
	}
	return nil
}

func canonicalTelecom(emails, phones []string) ([]byte, error) {
	var points []identity.ContactPoint
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			points = append(points, identity.ContactPoint{System: identity.SystemEmail, Value: e})
		}
	}
	for _, p := range phones {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, identity.ContactPoint{System: identity.SystemPhone, Value: p})
		}
	}
	if len(points) == 0 {
		return nil, nil
	}
	raw, err := identity.Canonical(points)
	if err != nil {
		return nil, fmt.Errorf("failed to encode telecom: %w", err)
	}
	return raw, nil
}

func canonicalAddress(addr *identity.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	raw, err := identity.Canonical([]identity.Address{*addr})
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}
	return raw, nil
}

func encodeHistory(h *MedicalHistory) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	out := *h
	if out.Allergies == nil {
		out.Allergies = []string{}
	}
	if out.ChronicConditions == nil {
		out.ChronicConditions = []string{}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode medical history: %w", err)
	}
	return raw, nil
}

func contactValues(records []identity.ContactRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Value)
	}
	return out
}

// orNoContacts keeps Insert from touching the child tables when none were given.
func orNoContacts(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

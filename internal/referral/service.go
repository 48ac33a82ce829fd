package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
)

const (
	maxCodeAttempts = 5
	codePrefix      = "REF-"
	codeLength      = 8
)

// HospitalDirectory reports whether a hospital exists.
type HospitalDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// DispatchLink lets the state machine consult and cancel the ambulance
// dispatch of a referral inside its own transaction.
type DispatchLink interface {
	HasActiveDispatch(ctx context.Context, tx db.DBTX, referralID string) (bool, error)
	CancelForReferral(ctx context.Context, tx db.DBTX, referralID string) (*CancelledDispatch, error)
}

// TransitionRecorder records referral state changes as metrics.
type TransitionRecorder interface {
	RecordReferralTransition(ctx context.Context, from, to string)
}

type Service struct {
	repo      RepositoryInterface
	tx        db.TxRunner
	hospitals HospitalDirectory
	gate      access.GateInterface
	dispatch  DispatchLink
	publisher messaging.PublisherInterface
	metrics   TransitionRecorder
	logger    *zap.Logger
	newCode   func() string
	now       func() time.Time
}

func NewService(
	repo RepositoryInterface,
	tx db.TxRunner,
	hospitals HospitalDirectory,
	gate access.GateInterface,
	dispatch DispatchLink,
	publisher messaging.PublisherInterface,
	metrics TransitionRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		hospitals: hospitals,
		gate:      gate,
		dispatch:  dispatch,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		newCode:   generateCode,
		now:       time.Now,
	}
}

// generateCode returns "REF-" followed by 8 uppercase hex characters.
func generateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return codePrefix + strings.ToUpper(raw[:codeLength])
}

// CreateReferral opens a PENDING referral from actor.HospitalID.
func (s *Service) CreateReferral(ctx context.Context, actor Actor, req CreateReferralRequest) (*Referral, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ToHospitalID = strings.TrimSpace(req.ToHospitalID)
	req.Reason = strings.TrimSpace(req.Reason)

	if req.PatientID == "" {
		return nil, fmt.Errorf("%w: patientId is required", apperrors.ErrValidation)
	}
	if req.ToHospitalID == "" {
		return nil, fmt.Errorf("%w: toHospitalId is required", apperrors.ErrValidation)
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", apperrors.ErrValidation)
	}
	if req.ToHospitalID == actor.HospitalID {
		return nil, fmt.Errorf("%w: a hospital cannot refer a patient to itself", apperrors.ErrValidation)
	}
	priority, err := ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	for _, id := range []string{actor.HospitalID, req.ToHospitalID} {
		ok, err := s.hospitals.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check hospital: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: hospital %s", apperrors.ErrNotFound, id)
		}
	}

	if err := s.gate.RequirePatient(ctx, actor.HospitalID, req.PatientID, access.LevelRead); err != nil {
		return nil, err
	}

	var created *Referral
	for attempt := 1; ; attempt++ {
		err := s.tx.WithinTx(ctx, func(tx db.DBTX) error {
			repo := s.repo.WithTx(tx)
			var err error
			created, err = repo.Insert(ctx, &Referral{
				ID:                uuid.NewString(),
				ReferralCode:      s.newCode(),
				PatientID:         req.PatientID,
				FromHospitalID:    actor.HospitalID,
				ToHospitalID:      req.ToHospitalID,
				Reason:            req.Reason,
				Notes:             strings.TrimSpace(req.Notes),
				Priority:          priority,
				Status:            StatusPending,
				RequiresAmbulance: req.RequiresAmbulance,
				CreatedByUserID:   actor.UserID,
			})
			if err != nil {
				return err
			}
			return repo.AppendHistory(ctx, StatusChange{
				ReferralID:          created.ID,
				ToStatus:            StatusPending,
				ChangedByUserID:     actor.UserID,
				ChangedByHospitalID: actor.HospitalID,
				Notes:               created.Notes,
			})
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrCodeTaken) && attempt < maxCodeAttempts {
			logging.For(ctx, s.logger).Info("referral code collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}

	s.recordTransition(ctx, "", StatusPending)
	messaging.PublishBestEffort(ctx, s.publisher, s.logger, messaging.EventReferralCreated, messaging.ReferralCreatedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventReferralCreated),
		Data: messaging.ReferralCreatedData{
			ReferralID:        created.ID,
			ReferralCode:      created.ReferralCode,
			PatientID:         created.PatientID,
			FromHospitalID:    created.FromHospitalID,
			ToHospitalID:      created.ToHospitalID,
			Priority:          string(created.Priority),
			RequiresAmbulance: created.RequiresAmbulance,
			CreatedBy:         created.CreatedByUserID,
			CreatedAt:         created.CreatedAt,
		},
	})

	logging.For(ctx, s.logger).Info("referral created",
		zap.String("referral_id", created.ID),
		zap.String("referral_code", created.ReferralCode),
		zap.String("to_hospital_id", created.ToHospitalID),
	)
	return created, nil
}

// GetReferral returns the referral with its history. Hospitals that are not a
// party see NotFound.
func (s *Service) GetReferral(ctx context.Context, hospitalID, id string) (*Referral, error) {
	ref, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanAccessReferral(hospitalID, ref) {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, id)
	}

	ref.History, err = s.repo.History(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Service) ListReferrals(ctx context.Context, hospitalID string, filter ListFilter) ([]Referral, error) {
	refs, err := s.repo.List(ctx, hospitalID, filter)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// UpdateReferral moves a referral along the state machine. ACCEPTED and
// REJECTED are reserved to the receiving hospital.
func (s *Service) UpdateReferral(ctx context.Context, actor Actor, id string, req UpdateReferralRequest) (*Referral, error) {
	if strings.TrimSpace(req.Status) == "" {
		return nil, fmt.Errorf("%w: status is required", apperrors.ErrValidation)
	}
	next, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, next, req.Notes)
}

// CancelReferral cancels the referral. Like every move into a terminal status
// it also cancels a non-terminal dispatch serving the referral.
func (s *Service) CancelReferral(ctx context.Context, actor Actor, id string, notes *string) (*Referral, error) {
	return s.transition(ctx, actor, id, StatusCancelled, notes)
}

func (s *Service) transition(ctx context.Context, actor Actor, id string, next Status, notes *string) (*Referral, error) {
	var (
		previous  Status
		updated   *Referral
		cancelled *CancelledDispatch
	)

	err := s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.gate.CanAccessReferral(actor.HospitalID, current) {
			return fmt.Errorf("%w: only the sending or receiving hospital may update referral %s", apperrors.ErrForbidden, id)
		}
		if receiverOnly(next) && actor.HospitalID != current.ToHospitalID {
			return fmt.Errorf("%w: only the receiving hospital may set %s", apperrors.ErrForbidden, next)
		}
		if !CanTransition(current.Status, next) {
			return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, current.Status, next)
		}

		if next == StatusCompleted && s.dispatch != nil {
			active, err := s.dispatch.HasActiveDispatch(ctx, tx, id)
			if err != nil {
				return err
			}
			if active {
				return fmt.Errorf("%w: referral %s still has an active ambulance dispatch", apperrors.ErrConflict, id)
			}
		}

		var completedAt *time.Time
		if next == StatusCompleted {
			now := s.now().UTC()
			completedAt = &now
		}

		previous = current.Status
		updated, err = repo.UpdateStatus(ctx, id, next, notes, completedAt)
		if err != nil {
			return err
		}

		var historyNotes string
		if notes != nil {
			historyNotes = *notes
		}
		if err := repo.AppendHistory(ctx, StatusChange{
			ReferralID:          id,
			FromStatus:          previous,
			ToStatus:            next,
			ChangedByUserID:     actor.UserID,
			ChangedByHospitalID: actor.HospitalID,
			Notes:               historyNotes,
		}); err != nil {
			return err
		}

		// A closed referral never keeps an ambulance bound.
		if next.IsTerminal() && s.dispatch != nil {
			cancelled, err = s.dispatch.CancelForReferral(ctx, tx, id)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update referral: %w", err)
	}

	s.recordTransition(ctx, previous, next)
	s.publishStatusChanged(ctx, updated, previous, actor)
	if cancelled != nil {
		s.publishDispatchCancelled(ctx, updated.ID, cancelled)
	}

	logging.For(ctx, s.logger).Info("referral status changed",
		zap.String("referral_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return updated, nil
}

func (s *Service) recordTransition(ctx context.Context, from, to Status) {
	if s.metrics != nil {
		s.metrics.RecordReferralTransition(ctx, string(from), string(to))
	}
}

func (s *Service) publishStatusChanged(ctx context.Context, ref *Referral, previous Status, actor Actor) {
	messaging.PublishBestEffort(ctx, s.publisher, s.logger, messaging.EventReferralStatusChanged, messaging.ReferralStatusChangedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventReferralStatusChanged),
		Data: messaging.ReferralStatusChangedData{
			ReferralID:        ref.ID,
			FromHospitalID:    ref.FromHospitalID,
			ToHospitalID:      ref.ToHospitalID,
			OldStatus:         string(previous),
			NewStatus:         string(ref.Status),
			ChangedByHospital: actor.HospitalID,
			ChangedBy:         actor.UserID,
			ChangedAt:         ref.UpdatedAt,
		},
	})
}

func (s *Service) publishDispatchCancelled(ctx context.Context, referralID string, c *CancelledDispatch) {
	messaging.PublishBestEffort(ctx, s.publisher, s.logger, messaging.EventDispatchStatusChanged, messaging.DispatchStatusChangedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventDispatchStatusChanged),
		Data: messaging.DispatchStatusChangedData{
			DispatchID:  c.DispatchID,
			ReferralID:  referralID,
			AmbulanceID: c.AmbulanceID,
			OldStatus:   c.OldStatus,
			NewStatus:   string(StatusCancelled),
			ChangedAt:   s.now().UTC(),
		},
	})
}

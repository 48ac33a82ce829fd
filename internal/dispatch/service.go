package dispatch

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
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
)

// OperationRecorder records dispatch operations as metrics.
type OperationRecorder interface {
	RecordDispatchOperation(ctx context.Context, operation, outcome string)
}

// Coordinator allocates ambulances to referrals and drives the dispatch
// lifecycle. An ambulance is DISPATCHED exactly while it serves one
// non-terminal dispatch.
type Coordinator struct {
	repo      RepositoryInterface
	referrals referral.RepositoryInterface
	tx        db.TxRunner
	gate      access.GateInterface
	publisher messaging.PublisherInterface
	metrics   OperationRecorder
	etaOffset time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewCoordinator(
	repo RepositoryInterface,
	referrals referral.RepositoryInterface,
	tx db.TxRunner,
	gate access.GateInterface,
	publisher messaging.PublisherInterface,
	metrics OperationRecorder,
	etaOffset time.Duration,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		repo:      repo,
		referrals: referrals,
		tx:        tx,
		gate:      gate,
		publisher: publisher,
		metrics:   metrics,
		etaOffset: etaOffset,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestDispatch assigns the first available ambulance of the sending
// hospital to the referral.
func (c *Coordinator) RequestDispatch(ctx context.Context, actor referral.Actor, referralID string, req RequestDispatchRequest) (*Dispatch, error) {
	var created *Dispatch
	var hospitalID string

	err := c.tx.WithinTx(ctx, func(tx db.DBTX) error {
		ref, err := c.referrals.WithTx(tx).GetForUpdate(ctx, referralID)
		if err != nil {
			return err
		}
		if !c.gate.CanAccessReferral(actor.HospitalID, ref) {
			return fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, referralID)
		}
		if ref.Status.IsTerminal() {
			return fmt.Errorf("%w: referral %s is %s", apperrors.ErrConflict, referralID, ref.Status)
		}
		if !ref.RequiresAmbulance {
			return fmt.Errorf("%w: referral %s does not require an ambulance", apperrors.ErrValidation, referralID)
		}

		repo := c.repo.WithTx(tx)
		if _, err := repo.GetByReferral(ctx, referralID); err == nil {
			return fmt.Errorf("%w: referral %s already has a dispatch", apperrors.ErrConflict, referralID)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		amb, err := repo.ClaimAvailableAmbulance(ctx, ref.FromHospitalID)
		if err != nil {
			return err
		}
		if _, err := repo.SetAmbulanceStatus(ctx, amb.ID, AmbulanceDispatched); err != nil {
			return err
		}

		now := c.now().UTC()
		created, err = repo.InsertDispatch(ctx, &Dispatch{
			ID:               uuid.NewString(),
			ReferralID:       referralID,
			AmbulanceID:      amb.ID,
			Status:           StatusDispatched,
			DispatchTime:     now,
			EstimatedArrival: now.Add(c.etaOffset),
			PickupLocation:   strings.TrimSpace(req.PickupLocation),
			DropoffLocation:  strings.TrimSpace(req.DropoffLocation),
			Notes:            strings.TrimSpace(req.Notes),
		})
		hospitalID = ref.FromHospitalID
		return err
	})
	if err != nil {
		c.record(ctx, "request", outcome(err))
		if apperrors.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to dispatch ambulance: %w", err)
	}

	c.record(ctx, "request", "ok")
	messaging.PublishBestEffort(ctx, c.publisher, c.logger, messaging.EventDispatchCreated, messaging.DispatchCreatedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventDispatchCreated),
		Data: messaging.DispatchCreatedData{
			DispatchID:       created.ID,
			ReferralID:       created.ReferralID,
			AmbulanceID:      created.AmbulanceID,
			HospitalID:       hospitalID,
			DispatchTime:     created.DispatchTime,
			EstimatedArrival: created.EstimatedArrival,
		},
	})

	logging.For(ctx, c.logger).Info("ambulance dispatched",
		zap.String("referral_id", referralID),
		zap.String("dispatch_id", created.ID),
		zap.String("ambulance_id", created.AmbulanceID),
	)
	return created, nil
}

func (c *Coordinator) GetDispatch(ctx context.Context, hospitalID, referralID string) (*Dispatch, error) {
	ref, err := c.referrals.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if !c.gate.CanAccessReferral(hospitalID, ref) {
		return nil, fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, referralID)
	}
	return c.repo.GetByReferral(ctx, referralID)
}

// UpdateDispatch moves the dispatch forward and records location and driver
// details. Reaching COMPLETED or CANCELLED releases the ambulance. Hospitals
// that are not a party see NotFound, as on every dispatch route.
func (c *Coordinator) UpdateDispatch(ctx context.Context, actor referral.Actor, referralID string, req UpdateDispatchRequest) (*Dispatch, error) {
	var next Status
	if strings.TrimSpace(req.Status) != "" {
		st, err := ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		next = st
	}

	var previous Status
	var updated *Dispatch

	err := c.tx.WithinTx(ctx, func(tx db.DBTX) error {
		ref, err := c.referrals.WithTx(tx).GetForUpdate(ctx, referralID)
		if err != nil {
			return err
		}
		if !c.gate.CanAccessReferral(actor.HospitalID, ref) {
			return fmt.Errorf("%w: referral %s", apperrors.ErrNotFound, referralID)
		}

		repo := c.repo.WithTx(tx)
		current, err := repo.GetByReferralForUpdate(ctx, referralID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: dispatch is already %s", apperrors.ErrInvalidTransition, current.Status)
		}
		if next == "" {
			next = current.Status
		} else if !CanTransition(current.Status, next) {
			return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, current.Status, next)
		}

		ch := Changes{
			Status:          next,
			CurrentLocation: req.CurrentLocation,
			DriverName:      req.DriverName,
			DriverPhone:     req.DriverPhone,
			Notes:           req.Notes,
		}
		if next == StatusCompleted {
			now := c.now().UTC()
			ch.CompletedAt = &now
		}

		previous = current.Status
		updated, err = repo.UpdateDispatch(ctx, current.ID, ch)
		if err != nil {
			return err
		}
		if next.IsTerminal() {
			if _, err := repo.SetAmbulanceStatus(ctx, current.AmbulanceID, AmbulanceAvailable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.record(ctx, "update", outcome(err))
		if apperrors.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update dispatch: %w", err)
	}

	c.record(ctx, "update", "ok")
	if previous != updated.Status {
		c.publishStatusChanged(ctx, updated, previous)
	}
	return updated, nil
}

// HasActiveDispatch reports whether the referral has a non-terminal dispatch.
func (c *Coordinator) HasActiveDispatch(ctx context.Context, tx db.DBTX, referralID string) (bool, error) {
	d, err := c.repo.WithTx(tx).GetByReferral(ctx, referralID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !d.Status.IsTerminal(), nil
}

// CancelForReferral cancels the referral's dispatch if it is still active and
// releases its ambulance. It returns nil when there was nothing to cancel.
func (c *Coordinator) CancelForReferral(ctx context.Context, tx db.DBTX, referralID string) (*referral.CancelledDispatch, error) {
	repo := c.repo.WithTx(tx)

	current, err := repo.GetByReferralForUpdate(ctx, referralID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, nil
	}

	if _, err := repo.UpdateDispatch(ctx, current.ID, Changes{Status: StatusCancelled}); err != nil {
		return nil, err
	}
	if _, err := repo.SetAmbulanceStatus(ctx, current.AmbulanceID, AmbulanceAvailable); err != nil {
		return nil, err
	}

	c.record(ctx, "cancel", "ok")
	return &referral.CancelledDispatch{
		DispatchID:  current.ID,
		AmbulanceID: current.AmbulanceID,
		OldStatus:   string(current.Status),
	}, nil
}

// RecordLocation stores a position report for the ambulance's active dispatch.
func (c *Coordinator) RecordLocation(ctx context.Context, ambulanceID, location string) (bool, error) {
	return c.repo.UpdateLocationByAmbulance(ctx, ambulanceID, location)
}

func (c *Coordinator) ListAmbulances(ctx context.Context, hospitalID string) ([]Ambulance, error) {
	return c.repo.ListAmbulances(ctx, hospitalID)
}

func (c *Coordinator) CreateAmbulance(ctx context.Context, hospitalID string, req CreateAmbulanceRequest) (*Ambulance, error) {
	callSign := strings.TrimSpace(req.CallSign)
	if callSign == "" {
		return nil, fmt.Errorf("%w: callSign is required", apperrors.ErrValidation)
	}
	vehicleType := strings.ToUpper(strings.TrimSpace(req.VehicleType))
	if vehicleType == "" {
		vehicleType = defaultVehicleType
	}

	amb, err := c.repo.InsertAmbulance(ctx, &Ambulance{
		ID:          uuid.NewString(),
		HospitalID:  hospitalID,
		CallSign:    callSign,
		VehicleType: vehicleType,
		Status:      AmbulanceAvailable,
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, "ambulance_create", "ok")
	return amb, nil
}

// SetAmbulanceStatus toggles an ambulance between AVAILABLE and
// OUT_OF_SERVICE. DISPATCHED is owned by the coordinator.
func (c *Coordinator) SetAmbulanceStatus(ctx context.Context, hospitalID, ambulanceID string, req UpdateAmbulanceStatusRequest) (*Ambulance, error) {
	target := AmbulanceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if target != AmbulanceAvailable && target != AmbulanceOutOfService {
		return nil, fmt.Errorf("%w: status must be AVAILABLE or OUT_OF_SERVICE", apperrors.ErrValidation)
	}

	var out *Ambulance
	err := c.tx.WithinTx(ctx, func(tx db.DBTX) error {
		repo := c.repo.WithTx(tx)
		amb, err := repo.GetAmbulanceForUpdate(ctx, ambulanceID)
		if err != nil {
			return err
		}
		if amb.HospitalID != hospitalID {
			return fmt.Errorf("%w: ambulance %s", apperrors.ErrNotFound, ambulanceID)
		}
		if amb.Status == AmbulanceDispatched {
			return fmt.Errorf("%w: ambulance %s is on an active dispatch", apperrors.ErrConflict, ambulanceID)
		}
		out, err = repo.SetAmbulanceStatus(ctx, ambulanceID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) publishStatusChanged(ctx context.Context, d *Dispatch, previous Status) {
	messaging.PublishBestEffort(ctx, c.publisher, c.logger, messaging.EventDispatchStatusChanged, messaging.DispatchStatusChangedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventDispatchStatusChanged),
		Data: messaging.DispatchStatusChangedData{
			DispatchID:  d.ID,
			ReferralID:  d.ReferralID,
			AmbulanceID: d.AmbulanceID,
			OldStatus:   string(previous),
			NewStatus:   string(d.Status),
			ChangedAt:   d.UpdatedAt,
		},
	})
}

func (c *Coordinator) record(ctx context.Context, operation, result string) {
	if c.metrics != nil {
		c.metrics.RecordDispatchOperation(ctx, operation, result)
	}
}

func outcome(err error) string {
	return apperrors.Code(err)
}

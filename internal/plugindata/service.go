package plugindata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/audit"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
)

// ServiceInterface defines the plugin data store.
type ServiceInterface interface {
	GetPluginData(ctx context.Context, actor Actor, patientID, pluginName string) (*Entry, error)
	SetPluginData(ctx context.Context, actor Actor, patientID, pluginName string, data json.RawMessage) (*Entry, error)
}

var _ ServiceInterface = (*Service)(nil)

type Service struct {
	repo      RepositoryInterface
	registry  *Registry
	gate      access.GateInterface
	audit     audit.RecorderInterface
	publisher messaging.PublisherInterface
	logger    *zap.Logger
}

func NewService(
	repo RepositoryInterface,
	registry *Registry,
	gate access.GateInterface,
	recorder audit.RecorderInterface,
	publisher messaging.PublisherInterface,
	logger *zap.Logger,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		gate:      gate,
		audit:     recorder,
		publisher: publisher,
		logger:    logger,
	}
}

// GetPluginData returns the stored payload, or the NOT_FOUND sentinel when the
// patient has none for this plugin.
func (s *Service) GetPluginData(ctx context.Context, actor Actor, patientID, pluginName string) (*Entry, error) {
	plugin, err := s.registry.Lookup(pluginName)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequirePatient(ctx, actor.HospitalID, patientID, access.LevelRead); err != nil {
		return nil, err
	}

	entry, err := s.repo.Get(ctx, patientID, plugin.Name)
	if errors.Is(err, apperrors.ErrNotFound) {
		entry = emptyEntry(patientID, plugin.Name)
	} else if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		PatientID:  patientID,
		HospitalID: actor.HospitalID,
		UserID:     actor.UserID,
		Action:     audit.ActionReadPluginData,
		PluginName: plugin.Name,
		Context:    map[string]interface{}{"status": entry.Status},
	})
	return entry, nil
}

// SetPluginData upserts the payload for (patient, plugin).
func (s *Service) SetPluginData(ctx context.Context, actor Actor, patientID, pluginName string, data json.RawMessage) (*Entry, error) {
	plugin, err := s.registry.Lookup(pluginName)
	if err != nil {
		return nil, err
	}
	if err := plugin.CheckPayload(data); err != nil {
		return nil, err
	}
	if err := s.gate.RequirePatient(ctx, actor.HospitalID, patientID, access.LevelWrite); err != nil {
		return nil, err
	}

	entry, created, err := s.repo.Upsert(ctx, Upsert{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		PluginName: plugin.Name,
		Data:       data,
		UserID:     actor.UserID,
		HospitalID: actor.HospitalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store %s data: %w", plugin.Name, err)
	}

	s.audit.Record(ctx, audit.Entry{
		PatientID:  patientID,
		HospitalID: actor.HospitalID,
		UserID:     actor.UserID,
		Action:     audit.ActionWritePluginData,
		PluginName: plugin.Name,
		Context:    map[string]interface{}{"created": created},
	})
	messaging.PublishBestEffort(ctx, s.publisher, s.logger, messaging.EventPluginDataUpdated, messaging.PluginDataUpdatedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPluginDataUpdated),
		Data: messaging.PluginDataUpdatedData{
			PatientID:  patientID,
			PluginName: plugin.Name,
			HospitalID: actor.HospitalID,
			UpdatedBy:  actor.UserID,
			Created:    created,
			UpdatedAt:  *entry.UpdatedAt,
		},
	})
	return entry, nil
}

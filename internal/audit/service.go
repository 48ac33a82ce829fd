package audit

import (
	"context"
	"fmt"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/pagination"
)

// LogReader is the read side of the access log.
type LogReader interface {
	List(ctx context.Context, patientID string, limit, offset int) ([]LogEntry, int, error)
}

var _ LogReader = (*Recorder)(nil)

type ServiceInterface interface {
	ListAccessLog(ctx context.Context, callerHospitalID, patientID string, params pagination.Params) (*PaginatedLogResponse, error)
}

var _ ServiceInterface = (*Service)(nil)

type Service struct {
	reader LogReader
	gate   access.GateInterface
}

func NewService(reader LogReader, gate access.GateInterface) *Service {
	return &Service{reader: reader, gate: gate}
}

// ListAccessLog requires ADMIN on the patient.
func (s *Service) ListAccessLog(ctx context.Context, callerHospitalID, patientID string, params pagination.Params) (*PaginatedLogResponse, error) {
	if err := s.gate.RequirePatient(ctx, callerHospitalID, patientID, access.LevelAdmin); err != nil {
		return nil, err
	}
	params.Validate()

	entries, total, err := s.reader.List(ctx, patientID, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", err)
	}
	return &PaginatedLogResponse{
		Success:    true,
		Entries:    entries,
		Pagination: params.CalculateMeta(total),
	}, nil
}

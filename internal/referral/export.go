package referral

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Referrals"

var exportHeader = []string{
	"Referral Code",
	"Status",
	"Priority",
	"Direction",
	"Patient ID",
	"From Hospital",
	"To Hospital",
	"Reason",
	"Requires Ambulance",
	"Created At",
	"Completed At",
}

var exportColumnWidths = []float64{16, 12, 12, 10, 38, 38, 38, 40, 18, 20, 20}

// ExportReferrals renders the hospital's referrals, filtered like
// ListReferrals, as an xlsx workbook.
func (s *Service) ExportReferrals(ctx context.Context, hospitalID string, filter ListFilter) ([]byte, error) {
	refs, err := s.repo.List(ctx, hospitalID, filter)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(hospitalID, refs)
}

func buildWorkbook(hospitalID string, refs []Referral) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(exportSheet, col, col, exportColumnWidths[i]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, ref := range refs {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		values := []interface{}{
			ref.ReferralCode,
			string(ref.Status),
			string(ref.Priority),
			direction(hospitalID, ref),
			ref.PatientID,
			ref.FromHospitalID,
			ref.ToHospitalID,
			ref.Reason,
			yesNo(ref.RequiresAmbulance),
			ref.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(ref.CompletedAt),
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func direction(hospitalID string, ref Referral) string {
	if ref.FromHospitalID == hospitalID {
		return "OUTGOING"
	}
	return "INCOMING"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

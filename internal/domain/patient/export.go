package patient

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Patients"

// ExportHeader is the first row of the exported workbook.
var ExportHeader = []string{
	"ID",
	"Prescription Year",
	"Treatment Duration",
	"Prescription Service",
	"Prescription Count",
	"Treatment Type",
	"Formula",
	"Diagnostic",
	"Diagnostic Detail",
	"Name",
	"Age",
	"Sex",
	"Weight",
	"Height",
	"Cranial Perimeter",
	"Nutritional State Evaluated",
	"Weight Z-Score",
	"Height Z-Score",
	"Cranial Perimeter Z-Score",
	"BMI",
}

// Export writes up to MaxListed records, optionally restricted to one
// prescription year, as an XLSX workbook to w.
func (s *Service) Export(ctx context.Context, w io.Writer, year *int64) error {
	ctx, finish := s.start(ctx, "export")

	items, err := s.repo.List(ctx, year, MaxListed)
	if err != nil {
		return finish(err)
	}

	f, err := buildWorkbook(items)
	if err != nil {
		return finish(err)
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return finish(fmt.Errorf("write workbook: %w", err))
	}
	return finish(nil)
}

func buildWorkbook(items []*Patient) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, p := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("convert coordinates: %w", err)
		}
		row := exportRow(p)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return f, nil
}

func exportRow(p *Patient) []interface{} {
	return []interface{}{
		p.ID,
		p.PrescriptionYear,
		p.TreatmentDuration,
		string(p.PrescriptionService),
		p.PrescriptionCount,
		string(p.TreatmentType.Kind),
		string(p.TreatmentType.Formula),
		string(p.Diagnostic.Kind),
		diagnosticDetail(p.Diagnostic),
		p.Name,
		p.Age,
		string(p.Sex),
		p.Weight,
		p.Height,
		p.CranialPerimeter,
		p.HadEvaluationNutriState,
		p.WeightZScore,
		p.HeightZScore,
		p.CranialPerimeterZScore,
		p.BMI,
	}
}

func diagnosticDetail(d Diagnostic) string {
	switch d.Kind {
	case DiagnosticRespiratory:
		if d.RespiratorySupport {
			return "with support"
		}
		return "without support"
	case DiagnosticCardiac:
		return string(d.Cardiac)
	case DiagnosticSnc:
		return string(d.Snc)
	default:
		return d.Text
	}
}

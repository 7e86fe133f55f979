package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/lirads-audit-server/internal/domain"
)

const casesSheet = "Cases"

var caseHeaders = []interface{}{
	"Case ID", "Version", "Category", "Decision", "Lesion size (mm)", "Generated at", "Updated at",
}

// WriteCasesXLSX writes one row per case summary.
func WriteCasesXLSX(w io.Writer, cases []domain.CaseSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", casesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(casesSheet, "A1", &caseHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, c := range cases {
		row := []interface{}{
			c.CaseID,
			c.Version,
			c.Category,
			c.Decision,
			c.LesionSizeMM,
			c.GeneratedAt,
			c.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(casesSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(casesSheet, "A", "A", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(casesSheet, "D", "D", 36); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

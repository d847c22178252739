// Package recordexport renders stored records as a spreadsheet.
package recordexport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"carescribe/internal/recordstore"
)

// SheetName is the worksheet holding one row per record.
const SheetName = "Records"

// Header lists the exported columns in order.
var Header = []string{
	"Name", "File", "Created", "Subject ID", "Display Name", "Program", "Session Date",
	"Transcript Bytes", "Positive", "Neutral", "Negative", "Keywords", "Topics",
	"Summary", "Actionable Insights", "Fallback Analysis",
}

// WriteWorkbook writes records as an xlsx workbook to w.
func WriteWorkbook(w io.Writer, records []recordstore.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := setRow(f, 1, toCells(Header)); err != nil {
		return err
	}
	for i, record := range records {
		if err := setRow(f, i+2, recordRow(record)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func recordRow(record recordstore.Record) []any {
	meta := record.Metadata
	row := []any{
		record.Name,
		record.FileName,
		record.CreatedAt.UTC().Format(time.RFC3339),
		meta.SubjectID,
		meta.DisplayName,
		meta.Program,
		meta.SessionDate,
		record.Size,
	}
	a := record.Analysis
	if a == nil {
		return append(row, "", "", "", "", "", "", "", "")
	}
	if a.Sentiments != nil {
		row = append(row, a.Sentiments.Positive, a.Sentiments.Neutral, a.Sentiments.Negative)
	} else {
		row = append(row, "", "", "")
	}
	return append(row,
		strings.Join(a.Keywords, ", "),
		strings.Join(a.Topics, ", "),
		a.Summary,
		strings.Join(a.ActionableInsights, "\n"),
		a.Fallback,
	)
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

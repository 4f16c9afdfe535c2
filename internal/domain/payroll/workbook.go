package payroll

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const workbookSheetName = "Payroll"

// ImportWorkbook reads the first worksheet of an .xlsx upload and feeds its
// rows through the same pipeline as CSV text.
func ImportWorkbook(r io.Reader, opts ImportOptions) (ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return failed(&ImportError{Err: ErrBinaryFile, Message: fmt.Sprintf("workbook could not be opened: %v", err)})
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return failed(&ImportError{Err: ErrTooFewLines})
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return failed(&ImportError{Err: ErrBinaryFile, Message: fmt.Sprintf("worksheet %q could not be read: %v", sheets[0], err)})
	}
	return ImportTable(rows, opts)
}

// WriteWorkbook renders the sheet as an .xlsx with a bold header and a totals
// row under the money columns.
func WriteWorkbook(w io.Writer, sheet Sheet, records []Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", workbookSheetName); err != nil {
		return err
	}

	header := make([]any, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col.Label()
	}
	if err := f.SetSheetRow(workbookSheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(workbookSheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := exportValues(record)
		if err := f.SetSheetRow(workbookSheetName, cell, &values); err != nil {
			return err
		}
	}

	totalsRow := len(records) + 2
	summary := Summarize(records)
	totals := exportTotals(summary)
	cell, err := excelize.CoordinatesToCellName(1, totalsRow)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(workbookSheetName, cell, &totals); err != nil {
		return err
	}
	if err := f.SetRowStyle(workbookSheetName, totalsRow, totalsRow, bold); err != nil {
		return err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s payroll %s", sheet.Name, sheet.Period),
		Creator: "hrpayroll",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

package payroll

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// WritePayslip renders a one-page PDF payslip for record.
func WritePayslip(w io.Writer, sheet Sheet, record Record) error {
	currency := sheet.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	money := func(v float64) string {
		return decimal.NewFromFloat(v).StringFixed(0) + " " + currency
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Payroll: %s (%s)", sheet.Name, sheet.Period))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Employee: %s", record.Name))
	pdf.Ln(7)
	if record.Post != "" {
		pdf.Cell(0, 7, fmt.Sprintf("Post: %s", record.Post))
		pdf.Ln(7)
	}
	if record.Account != "" {
		pdf.Cell(0, 7, fmt.Sprintf("Account: %s %s", record.BankName, record.Account))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	lines := []struct {
		label string
		value float64
		bold  bool
	}{
		{"Basic salary", record.BasicSalary, false},
		{"Transport allowance", record.TransportAllowance, false},
		{"Gross salary", record.GrossSalary, true},
		{"PAYE", record.PAYE, false},
		{"Maternity leave (employee 0.3%)", record.MaternityLeaveEmployee, false},
		{"RSSB pension (employee 6%)", record.RSSBPensionEmployee6, false},
		{"RSSB pension (employee 2%)", record.RSSBPensionEmployee2, false},
		{"Net pay before CBHI", record.NetPayB4CBHI, true},
		{"Mutuelle (CBHI 0.5%)", record.Mutuelle, false},
		{"Advance", record.Advance, false},
		{"Net bank payment", record.NetBankList, true},
	}
	for _, line := range lines {
		style := ""
		if line.bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 11)
		pdf.CellFormat(110, 7, line.label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, money(line.value), "B", 1, "R", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Employer contributions: RSSB pension 6%% %s, maternity leave 0.3%% %s",
		money(record.RSSBPensionEmployer6), money(record.MaternityLeaveEmployer)))

	return pdf.Output(w)
}

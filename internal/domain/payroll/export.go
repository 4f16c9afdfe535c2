package payroll

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// exportColumns is the column order shared by the CSV and workbook exports.
// The labels are accepted back by the importer's header matching.
var exportColumns = []Field{
	FieldNo, FieldName, FieldPost, FieldAccount, FieldBankName, FieldTelephone, FieldIDNumber,
	FieldBasicSalary, FieldTransportAllowance, FieldGrossSalary, FieldPAYE,
	FieldMaternityLeaveEmployee, FieldMaternityLeaveEmployer,
	FieldRSSBPensionEmployee6, FieldRSSBPensionEmployer6, FieldRSSBPensionEmployee2,
	FieldTotalRSSBContribution, FieldNetPayB4CBHI, FieldMutuelle, FieldAdvance, FieldNetBankList,
	FieldStatus,
}

const totalsLabel = "TOTAL"

type exportRow struct {
	No                     int     `csv:"No"`
	Name                   string  `csv:"Names"`
	Post                   string  `csv:"Post"`
	Account                string  `csv:"Account Number"`
	BankName               string  `csv:"Bank Name"`
	Telephone              string  `csv:"Telephone"`
	IDNumber               string  `csv:"ID Number"`
	BasicSalary            float64 `csv:"Basic Salary"`
	TransportAllowance     float64 `csv:"Transport Allowance"`
	GrossSalary            float64 `csv:"Gross Salary"`
	PAYE                   float64 `csv:"PAYE"`
	MaternityLeaveEmployee float64 `csv:"Maternity Leave Employee 0.3%"`
	MaternityLeaveEmployer float64 `csv:"Maternity Leave Employer 0.3%"`
	RSSBPensionEmployee6   float64 `csv:"RSSB Pension Employee 6%"`
	RSSBPensionEmployer6   float64 `csv:"RSSB Pension Employer 6%"`
	RSSBPensionEmployee2   float64 `csv:"RSSB Pension Employee 2%"`
	TotalRSSBContribution  float64 `csv:"Total RSSB Contribution"`
	NetPayB4CBHI           float64 `csv:"Net Pay B4 CBHI"`
	Mutuelle               float64 `csv:"Mutuelle 0.5%"`
	Advance                float64 `csv:"Advance"`
	NetBankList            float64 `csv:"Net Bank List"`
	Status                 Status  `csv:"Status"`
}

func toExportRow(r Record) exportRow {
	return exportRow{
		No:                     r.No,
		Name:                   r.Name,
		Post:                   r.Post,
		Account:                r.Account,
		BankName:               r.BankName,
		Telephone:              r.Telephone,
		IDNumber:               r.IDNumber,
		BasicSalary:            r.BasicSalary,
		TransportAllowance:     r.TransportAllowance,
		GrossSalary:            r.GrossSalary,
		PAYE:                   r.PAYE,
		MaternityLeaveEmployee: r.MaternityLeaveEmployee,
		MaternityLeaveEmployer: r.MaternityLeaveEmployer,
		RSSBPensionEmployee6:   r.RSSBPensionEmployee6,
		RSSBPensionEmployer6:   r.RSSBPensionEmployer6,
		RSSBPensionEmployee2:   r.RSSBPensionEmployee2,
		TotalRSSBContribution:  r.TotalRSSBContribution,
		NetPayB4CBHI:           r.NetPayB4CBHI,
		Mutuelle:               r.Mutuelle,
		Advance:                r.Advance,
		NetBankList:            r.NetBankList,
		Status:                 r.Status,
	}
}

// WriteCSV writes one row per record under human-readable labels.
func WriteCSV(w io.Writer, records []Record) error {
	rows := make([]exportRow, len(records))
	for i, r := range records {
		rows[i] = toExportRow(r)
	}
	return gocsv.Marshal(rows, w)
}

func exportValues(r Record) []any {
	return []any{
		r.No, r.Name, r.Post, r.Account, r.BankName, r.Telephone, r.IDNumber,
		r.BasicSalary, r.TransportAllowance, r.GrossSalary, r.PAYE,
		r.MaternityLeaveEmployee, r.MaternityLeaveEmployer,
		r.RSSBPensionEmployee6, r.RSSBPensionEmployer6, r.RSSBPensionEmployee2,
		r.TotalRSSBContribution, r.NetPayB4CBHI, r.Mutuelle, r.Advance, r.NetBankList,
		string(r.Status),
	}
}

func exportTotals(s SheetSummary) []any {
	return []any{
		"", totalsLabel, "", "", "", "", "",
		s.BasicSalary, s.TransportAllowance, s.GrossSalary, s.PAYE,
		s.MaternityLeaveEmployee, s.MaternityLeaveEmployer,
		s.RSSBPensionEmployee6, s.RSSBPensionEmployer6, s.RSSBPensionEmployee2,
		s.TotalRSSBContribution, s.NetPayB4CBHI, s.Mutuelle, s.Advance, s.NetBankList,
		"",
	}
}

type templateRow struct {
	Name               string  `csv:"Names"`
	Post               string  `csv:"Post"`
	Account            string  `csv:"Account Number"`
	BankName           string  `csv:"Bank Name"`
	Telephone          string  `csv:"Telephone"`
	IDNumber           string  `csv:"ID Number"`
	BasicSalary        float64 `csv:"Basic Salary"`
	TransportAllowance float64 `csv:"Transport Allowance"`
	Advance            float64 `csv:"Advance"`
}

var templateNotes = []string{
	"# Payroll import template",
	"# Required columns: Names, Basic Salary, Transport Allowance.",
	"# Basic Salary must be greater than 0; Transport Allowance and Advance must be 0 or more.",
	"# Gross salary, PAYE, RSSB, maternity, mutuelle and net pay are calculated when their columns are left out.",
	"# Lines starting with # above the header are ignored on upload.",
}

// Template returns a ready-to-fill CSV: instruction lines, the header row and
// one example employee.
func Template() ([]byte, error) {
	var buf bytes.Buffer
	for _, note := range templateNotes {
		fmt.Fprintln(&buf, note)
	}
	example := []templateRow{{
		Name:               "Jane Uwase",
		Post:               "Security Guard",
		Account:            "4001-2233-4455",
		BankName:           "Bank of Kigali",
		Telephone:          "0788000000",
		IDNumber:           "1199080012345678",
		BasicSalary:        16181,
		TransportAllowance: 12000,
		Advance:            0,
	}}
	if err := gocsv.Marshal(example, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package payroll

import (
	"fmt"
	"math"
	"strings"
)

type ImportOptions struct {
	// StartNo is the number of records already on the sheet; generated
	// sequence numbers continue after it.
	StartNo int
	// DefaultStatus applies when the file has no usable status column.
	DefaultStatus Status
	// OnProgress is called after each data row. Display only.
	OnProgress func(done, total int)
}

// Import parses delimited text into payroll records. Structural problems
// (binary content, no data row, missing required columns) abort the import
// and return an *ImportError; problems with individual rows are collected in
// ImportResult.Errors and never stop the batch. An import that accepts no
// rows at all also returns an *ImportError wrapping ErrNoValidRows, along
// with the row errors that explain why.
func Import(data []byte, opts ImportOptions) (ImportResult, error) {
	if kind, ok := sniffBinary(data); ok {
		return failed(&ImportError{
			Err:     ErrBinaryFile,
			Message: fmt.Sprintf("file appears to be %s, not CSV text; save it as CSV (comma delimited) and upload again", kind),
		})
	}
	text, err := decodeText(data)
	if err != nil {
		return failed(&ImportError{Err: ErrBinaryFile, Message: fmt.Sprintf("file could not be decoded as text: %v", err)})
	}
	if looksBinary(text) {
		return failed(&ImportError{Err: ErrBinaryFile, Message: "file contains binary data; upload a CSV text file"})
	}

	lines := dropLeadingComments(splitLines(text))
	if len(lines) < 2 {
		return failed(&ImportError{Err: ErrTooFewLines})
	}
	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, splitLine(line))
	}
	return importRows(splitLine(lines[0]), rows, opts)
}

// ImportTable runs the row pipeline over cells that were already split, such
// as the rows of a spreadsheet. Blank rows and leading "#" rows are dropped
// before the header is taken.
func ImportTable(table [][]string, opts ImportOptions) (ImportResult, error) {
	rows := make([][]string, 0, len(table))
	for _, row := range table {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.TrimSpace(c)
		}
		if blankRow(cells) {
			continue
		}
		if len(rows) == 0 && strings.HasPrefix(cells[0], "#") {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) < 2 {
		return failed(&ImportError{Err: ErrTooFewLines})
	}
	return importRows(rows[0], rows[1:], opts)
}

func importRows(header []string, rows [][]string, opts ImportOptions) (ImportResult, error) {
	mapping := BuildFieldMapping(header)
	if missing := mapping.Missing(RequiredFields...); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, f := range missing {
			labels[i] = f.Label()
		}
		return failed(&ImportError{
			Err:     ErrMissingColumns,
			Missing: missing,
			Message: fmt.Sprintf("required columns missing: %s", strings.Join(labels, ", ")),
		})
	}

	defaultStatus := opts.DefaultStatus
	if !defaultStatus.Valid() {
		defaultStatus = StatusActive
	}
	parser := rowParser{mapping: mapping, defaultStatus: defaultStatus}

	result := ImportResult{
		Status:  ImportProcessing,
		Records: []Record{},
		Errors:  []string{},
		Mapping: mapping,
	}
	for i, cells := range rows {
		cells = fitRow(cells, len(header))
		if !blankRow(cells) && !parser.totalsRow(cells) {
			record, problem := parser.parse(i+1, cells, opts.StartNo+len(result.Records)+1)
			if problem != "" {
				result.Errors = append(result.Errors, problem)
			} else {
				result.Records = append(result.Records, record)
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(rows))
		}
	}

	if len(result.Records) == 0 {
		result.Status = ImportFailed
		return result, &ImportError{Err: ErrNoValidRows, Message: "no valid rows found in file"}
	}
	result.Status = ImportSuccess
	return result, nil
}

func failed(err *ImportError) (ImportResult, error) {
	return ImportResult{
		Status:  ImportFailed,
		Records: []Record{},
		Errors:  []string{err.Error()},
	}, err
}

// amountFields are the money columns checked against MaxAmount.
var amountFields = []Field{
	FieldBasicSalary, FieldTransportAllowance, FieldAdvance, FieldGrossSalary, FieldPAYE,
	FieldMaternityLeaveEmployee, FieldMaternityLeaveEmployer,
	FieldRSSBPensionEmployee6, FieldRSSBPensionEmployer6, FieldRSSBPensionEmployee2,
	FieldTotalRSSBContribution, FieldNetPayB4CBHI, FieldMutuelle, FieldNetBankList,
}

var identityFields = []Field{FieldPost, FieldAccount, FieldBankName, FieldTelephone, FieldIDNumber, FieldStatus}

type rowParser struct {
	mapping       FieldMapping
	defaultStatus Status
}

func (p rowParser) text(cells []string, f Field) string {
	if idx, ok := p.mapping[f]; ok {
		return cells[idx]
	}
	return ""
}

// amount returns nil when the column is absent so that the calculator derives
// the field; a present but blank or unparseable cell reads as 0.
func (p rowParser) amount(cells []string, f Field) *float64 {
	idx, ok := p.mapping[f]
	if !ok {
		return nil
	}
	value, _ := parseAmount(cells[idx])
	return &value
}

// parse validates one data row. rowNum is the 1-based position of the row
// after the header. A non-empty problem means the row was rejected.
func (p rowParser) parse(rowNum int, cells []string, nextNo int) (Record, string) {
	name := p.text(cells, FieldName)
	if name == "" {
		return Record{}, fmt.Sprintf("Row %d: missing employee name", rowNum)
	}

	rawBasic := p.text(cells, FieldBasicSalary)
	if rawBasic == "" {
		return Record{}, fmt.Sprintf("Row %d (%s): missing basic salary", rowNum, name)
	}
	basic, ok := parseAmount(rawBasic)
	if !ok || basic <= 0 {
		return Record{}, fmt.Sprintf("Row %d (%s): basic salary %q must be a number greater than 0", rowNum, name, rawBasic)
	}

	rawTransport := p.text(cells, FieldTransportAllowance)
	if rawTransport == "" {
		return Record{}, fmt.Sprintf("Row %d (%s): missing transport allowance", rowNum, name)
	}
	transport, ok := parseAmount(rawTransport)
	if !ok || transport < 0 {
		return Record{}, fmt.Sprintf("Row %d (%s): transport allowance %q must be a number of 0 or more", rowNum, name, rawTransport)
	}

	for _, f := range amountFields {
		if idx, ok := p.mapping[f]; ok {
			if value, _ := parseAmount(cells[idx]); math.Abs(value) >= MaxAmount {
				return Record{}, fmt.Sprintf("Row %d (%s): %s %q is out of range", rowNum, name, strings.ToLower(f.Label()), cells[idx])
			}
		}
	}

	record := Record{
		No:                 nextNo,
		Name:               name,
		Post:               p.text(cells, FieldPost),
		Account:            p.text(cells, FieldAccount),
		BankName:           p.text(cells, FieldBankName),
		Telephone:          p.text(cells, FieldTelephone),
		IDNumber:           p.text(cells, FieldIDNumber),
		BasicSalary:        basic,
		TransportAllowance: transport,
		Status:             p.status(cells),
	}
	if no := p.amount(cells, FieldNo); no != nil {
		if n := math.Round(*no); n > 0 && n <= MaxRecordNo {
			record.No = int(n)
		}
	}
	if advance := p.amount(cells, FieldAdvance); advance != nil {
		record.Advance = *advance
	}

	return Derive(record, Overrides{
		GrossSalary:            p.amount(cells, FieldGrossSalary),
		PAYE:                   p.amount(cells, FieldPAYE),
		MaternityLeaveEmployee: p.amount(cells, FieldMaternityLeaveEmployee),
		MaternityLeaveEmployer: p.amount(cells, FieldMaternityLeaveEmployer),
		RSSBPensionEmployee6:   p.amount(cells, FieldRSSBPensionEmployee6),
		RSSBPensionEmployer6:   p.amount(cells, FieldRSSBPensionEmployer6),
		RSSBPensionEmployee2:   p.amount(cells, FieldRSSBPensionEmployee2),
		TotalRSSBContribution:  p.amount(cells, FieldTotalRSSBContribution),
		NetPayB4CBHI:           p.amount(cells, FieldNetPayB4CBHI),
		Mutuelle:               p.amount(cells, FieldMutuelle),
		NetBankList:            p.amount(cells, FieldNetBankList),
	}), ""
}

// totalsRow reports whether cells are the TOTAL line the exports append: a
// No column left blank, the label in the name column and no identity details.
func (p rowParser) totalsRow(cells []string) bool {
	if !p.mapping.Has(FieldNo) || p.text(cells, FieldNo) != "" || p.text(cells, FieldName) != totalsLabel {
		return false
	}
	for _, f := range identityFields {
		if p.text(cells, f) != "" {
			return false
		}
	}
	return true
}

func (p rowParser) status(cells []string) Status {
	status := Status(strings.ToLower(p.text(cells, FieldStatus)))
	if status.Valid() {
		return status
	}
	return p.defaultStatus
}

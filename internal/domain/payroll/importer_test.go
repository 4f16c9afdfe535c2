package payroll

import (
	"errors"
	"strings"
	"testing"
)

const basicHeader = "Names,Basic Salary,Transport Allowance"

func mustImport(t *testing.T, data string, opts ImportOptions) ImportResult {
	t.Helper()
	result, err := Import([]byte(data), opts)
	if err != nil {
		t.Fatalf("import failed: %v (errors %v)", err, result.Errors)
	}
	return result
}

func TestImportIsolatesRowErrors(t *testing.T) {
	data := strings.Join([]string{
		basicHeader,
		"Jean Bosco,16181,12000",
		"Aline,16181,12000",
		",16181,12000",
		"Eric,16181,12000",
		"Diane,16181,12000",
	}, "\n")

	result := mustImport(t, data, ImportOptions{})

	if result.Status != ImportSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if len(result.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Row 3: missing employee name" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	for i, r := range result.Records {
		if r.No != i+1 {
			t.Fatalf("record %d: expected No %d, got %d", i, i+1, r.No)
		}
		if r.Status != StatusActive {
			t.Fatalf("record %d: expected active status, got %s", i, r.Status)
		}
	}
	r := result.Records[0]
	if r.GrossSalary != 28181 || r.PAYE != 0 || r.RSSBPensionEmployee6 != 1691 || r.TotalRSSBContribution != 3946 {
		t.Fatalf("unexpected derived figures: %+v", r)
	}
	// 28181 - (0 + 85 + 1691 + 564) = 25841, mutuelle 129.205
	if r.NetPayB4CBHI != 25841 || r.Mutuelle != 129 || r.NetBankList != 25712 {
		t.Fatalf("unexpected net figures: %+v", r)
	}
}

func TestImportRequiresColumns(t *testing.T) {
	result, err := Import([]byte("Names,Post\nJane,Guard\n"), ImportOptions{})
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %T", err)
	}
	if len(importErr.Missing) != 2 || importErr.Missing[0] != FieldBasicSalary || importErr.Missing[1] != FieldTransportAllowance {
		t.Fatalf("unexpected missing fields: %v", importErr.Missing)
	}
	if err.Error() != "required columns missing: Basic Salary, Transport Allowance" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if result.Status != ImportFailed || len(result.Records) != 0 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestImportKeepsSuppliedDerivedValues(t *testing.T) {
	data := "Names,Basic Salary,Transport Allowance,PAYE,Net Bank List\n" +
		"Jane,238000,12000,,999\n"

	result := mustImport(t, data, ImportOptions{})
	r := result.Records[0]

	if r.NetBankList != 999 {
		t.Fatalf("expected supplied net bank 999, got %v", r.NetBankList)
	}
	// blank PAYE cell in a present column reads as 0
	if r.PAYE != 0 {
		t.Fatalf("expected PAYE 0, got %v", r.PAYE)
	}
	if r.GrossSalary != 250000 || r.RSSBPensionEmployee6 != 15000 {
		t.Fatalf("expected derived gross and pension, got %+v", r)
	}
	if r.NetPayB4CBHI != 250000-750-15000-5000 {
		t.Fatalf("expected net before CBHI to use PAYE 0, got %v", r.NetPayB4CBHI)
	}
}

func TestImportRejectsBinaryContent(t *testing.T) {
	cases := map[string][]byte{
		"xlsx": append([]byte{'P', 'K', 0x03, 0x04}, []byte("workbook")...),
		"xls":  {0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00},
		"pdf":  []byte("%PDF-1.7\n..."),
		"nul":  []byte("Names,Basic Salary,Transport Allowance\nJane\x00,1,1\n"),
	}
	for name, data := range cases {
		result, err := Import(data, ImportOptions{})
		if !errors.Is(err, ErrBinaryFile) {
			t.Fatalf("%s: expected ErrBinaryFile, got %v", name, err)
		}
		if result.Status != ImportFailed {
			t.Fatalf("%s: expected failed status, got %s", name, result.Status)
		}
	}
}

func TestImportNeedsHeaderAndDataRow(t *testing.T) {
	for _, data := range []string{"", basicHeader, basicHeader + "\n\n  \n", "# note\n" + basicHeader} {
		if _, err := Import([]byte(data), ImportOptions{}); !errors.Is(err, ErrTooFewLines) {
			t.Fatalf("%q: expected ErrTooFewLines, got %v", data, err)
		}
	}
}

func TestImportFailsWhenNoRowIsValid(t *testing.T) {
	data := basicHeader + "\nJane,0,100\nEric,abc,100\n"
	result, err := Import([]byte(data), ImportOptions{})
	if !errors.Is(err, ErrNoValidRows) {
		t.Fatalf("expected ErrNoValidRows, got %v", err)
	}
	if result.Status != ImportFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	want := []string{
		`Row 1 (Jane): basic salary "0" must be a number greater than 0`,
		`Row 2 (Eric): basic salary "abc" must be a number greater than 0`,
	}
	if len(result.Errors) != len(want) {
		t.Fatalf("expected %d errors, got %v", len(want), result.Errors)
	}
	for i := range want {
		if result.Errors[i] != want[i] {
			t.Fatalf("error %d: expected %q, got %q", i, want[i], result.Errors[i])
		}
	}
}

func TestImportTransportValidation(t *testing.T) {
	data := basicHeader + "\nJane,100,\nEric,100,-5\nAline,100,0\n"
	result := mustImport(t, data, ImportOptions{})
	if len(result.Records) != 1 || result.Records[0].Name != "Aline" {
		t.Fatalf("expected only Aline accepted, got %+v", result.Records)
	}
	if result.Errors[0] != "Row 1 (Jane): missing transport allowance" {
		t.Fatalf("unexpected error: %q", result.Errors[0])
	}
	if result.Errors[1] != `Row 2 (Eric): transport allowance "-5" must be a number of 0 or more` {
		t.Fatalf("unexpected error: %q", result.Errors[1])
	}
}

func TestImportSkipsLeadingComments(t *testing.T) {
	data := "# Payroll import template\n# another note\n" + basicHeader + "\nJane,100,0\n"
	result := mustImport(t, data, ImportOptions{})
	if len(result.Records) != 1 || result.Records[0].Name != "Jane" {
		t.Fatalf("unexpected records: %+v", result.Records)
	}
}

func TestImportQuotedCellsAndLenientNumbers(t *testing.T) {
	data := "Names,Post,Basic Salary,Transport Allowance\r\n" +
		`"Uwase, Jane",Guard,"RWF 1,250,000",  12000.50  ` + "\r\n"

	r := mustImport(t, data, ImportOptions{}).Records[0]
	if r.Name != "Uwase, Jane" {
		t.Fatalf("expected quoted name, got %q", r.Name)
	}
	if r.Post != "Guard" {
		t.Fatalf("expected post Guard, got %q", r.Post)
	}
	if r.BasicSalary != 1250000 || r.TransportAllowance != 12000.5 {
		t.Fatalf("unexpected amounts: %v / %v", r.BasicSalary, r.TransportAllowance)
	}
}

func TestImportPadsAndTruncatesRows(t *testing.T) {
	data := basicHeader + ",Advance\n" +
		"Jane,100,0\n" +
		"Eric,100,0,10,ignored,extra\n"

	result := mustImport(t, data, ImportOptions{})
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d (%v)", len(result.Records), result.Errors)
	}
	if result.Records[0].Advance != 0 || result.Records[1].Advance != 10 {
		t.Fatalf("unexpected advances: %v, %v", result.Records[0].Advance, result.Records[1].Advance)
	}
}

func TestImportNumbering(t *testing.T) {
	data := "No,Names,Basic Salary,Transport Allowance\n" +
		",Jane,100,0\n" +
		"7,Eric,100,0\n" +
		"0,Aline,100,0\n"

	result := mustImport(t, data, ImportOptions{StartNo: 10})
	got := []int{result.Records[0].No, result.Records[1].No, result.Records[2].No}
	if got[0] != 11 || got[1] != 7 || got[2] != 13 {
		t.Fatalf("unexpected numbering: %v", got)
	}
}

func TestImportStatusColumn(t *testing.T) {
	data := basicHeader + ",Status\nJane,100,0,Paid\nEric,100,0,unknown\n"
	result := mustImport(t, data, ImportOptions{DefaultStatus: StatusInactive})
	if result.Records[0].Status != StatusPaid {
		t.Fatalf("expected paid, got %s", result.Records[0].Status)
	}
	if result.Records[1].Status != StatusInactive {
		t.Fatalf("expected default status, got %s", result.Records[1].Status)
	}
}

func TestImportDecodesBOMAndWindows1252(t *testing.T) {
	utf8BOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte(basicHeader+"\nJosé,100,0\n")...)
	r := mustImport(t, string(utf8BOM), ImportOptions{}).Records[0]
	if r.Name != "José" {
		t.Fatalf("expected José from UTF-8, got %q", r.Name)
	}

	cp1252 := append([]byte(basicHeader+"\nJos"), 0xE9)
	cp1252 = append(cp1252, []byte(",100,0\n")...)
	r = mustImport(t, string(cp1252), ImportOptions{}).Records[0]
	if r.Name != "José" {
		t.Fatalf("expected José from Windows-1252, got %q", r.Name)
	}
}

func TestImportReportsProgress(t *testing.T) {
	var calls [][2]int
	opts := ImportOptions{OnProgress: func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}}
	mustImport(t, basicHeader+"\nJane,100,0\n,1,1\nEric,100,0\n", opts)
	if len(calls) != 3 {
		t.Fatalf("expected 3 progress calls, got %v", calls)
	}
	if calls[2] != [2]int{3, 3} {
		t.Fatalf("expected final call 3/3, got %v", calls[2])
	}
}

func TestImportTableSkipsCommentsAndTotals(t *testing.T) {
	table := [][]string{
		{"# exported from payroll"},
		{},
		{"No", "Names", "Basic Salary", "Transport Allowance"},
		{"1", " Jane ", "100", "0"},
		{"", "", "", ""},
		{"", "TOTAL", "100", "0"},
	}
	result, err := ImportTable(table, ImportOptions{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Name != "Jane" {
		t.Fatalf("unexpected records: %+v", result.Records)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestImportKeepsEmployeesNamedTotal(t *testing.T) {
	result := mustImport(t, basicHeader+"\nAlice,100000,5000\nTotal,90000,5000\n", ImportOptions{})
	if len(result.Records) != 2 || result.Records[1].Name != "Total" {
		t.Fatalf("expected both employees kept, got %+v", result.Records)
	}

	data := "No,Names,Post,Basic Salary,Transport Allowance\n" +
		",TOTAL,Guard,90000,5000\n" +
		",TOTAL,,90000,5000\n"
	result = mustImport(t, data, ImportOptions{})
	if len(result.Records) != 1 || result.Records[0].Post != "Guard" || len(result.Errors) != 0 {
		t.Fatalf("expected only the bare totals line skipped, got %+v (%v)", result.Records, result.Errors)
	}
}

func TestImportRejectsOutOfRangeAmounts(t *testing.T) {
	data := basicHeader + ",Net Bank List\n" +
		"Jane,99999999999999,0,\n" +
		"Eric,100,0,2000000000000\n" +
		"Aline,100,0,50.125\n"
	result := mustImport(t, data, ImportOptions{})
	if len(result.Records) != 1 || result.Records[0].Name != "Aline" {
		t.Fatalf("expected only Aline accepted, got %+v", result.Records)
	}
	if result.Records[0].NetBankList != 50.125 {
		t.Fatalf("expected supplied net bank list kept verbatim, got %v", result.Records[0].NetBankList)
	}
	want := []string{
		`Row 1 (Jane): basic salary "99999999999999" is out of range`,
		`Row 2 (Eric): net bank list "2000000000000" is out of range`,
	}
	if len(result.Errors) != len(want) {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	for i := range want {
		if result.Errors[i] != want[i] {
			t.Fatalf("error %d: expected %q, got %q", i, want[i], result.Errors[i])
		}
	}
}

func TestImportNumberingFallsBackWhenOutOfRange(t *testing.T) {
	data := "No,Names,Basic Salary,Transport Allowance\n" +
		"3000000000,Jane,100,0\n" +
		"7.6,Eric,100,0\n" +
		"-4,Aline,100,0\n"
	result := mustImport(t, data, ImportOptions{StartNo: 10})
	got := []int{result.Records[0].No, result.Records[1].No, result.Records[2].No}
	if got[0] != 11 || got[1] != 8 || got[2] != 13 {
		t.Fatalf("unexpected numbering: %v", got)
	}
}

package payroll

import (
	"bytes"
	"strings"
	"testing"
)

func sampleSheet() Sheet {
	return Sheet{ID: "s1", Name: "Kigali guards", Period: "2024-06", Currency: "RWF"}
}

func stripIdentity(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.ID, r.SheetID = "", ""
		out[i] = r
	}
	return out
}

func TestCSVExportRoundTrips(t *testing.T) {
	records := SampleRecords(0, 6)
	records[2].Status = StatusPaid
	records[3].NetBankList = 42

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "No,Names,Post,Account Number,Bank Name") {
		t.Fatalf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	result, err := Import(buf.Bytes(), ImportOptions{})
	if err != nil {
		t.Fatalf("re-import failed: %v (%v)", err, result.Errors)
	}
	got := stripIdentity(result.Records)
	want := stripIdentity(records)
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d differs:\n got %+v\nwant %+v", i, got[i], want[i])
		}
	}
}

func TestCSVExportWritesHeaderForEmptySheet(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "No,Names,") {
		t.Fatalf("expected header row, got %q", buf.String())
	}
}

func TestTemplateImportsCleanly(t *testing.T) {
	data, err := Template()
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if !strings.HasPrefix(string(data), "# ") {
		t.Fatalf("expected instruction lines first, got %q", string(data))
	}
	result, err := Import(data, ImportOptions{})
	if err != nil {
		t.Fatalf("template import failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected the example row, got %d records", len(result.Records))
	}
	r := result.Records[0]
	if r.Name != "Jane Uwase" || r.GrossSalary != 28181 || r.NetBankList != 25712 {
		t.Fatalf("unexpected template record: %+v", r)
	}
}

func TestWorkbookRoundTrips(t *testing.T) {
	records := SampleRecords(0, 3)

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, sampleSheet(), records); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	if !IsWorkbook(buf.Bytes()) {
		t.Fatalf("expected a zip container")
	}

	result, err := ImportWorkbook(bytes.NewReader(buf.Bytes()), ImportOptions{})
	if err != nil {
		t.Fatalf("import workbook: %v (%v)", err, result.Errors)
	}
	if len(result.Records) != len(records) {
		t.Fatalf("expected %d records without the totals row, got %d", len(records), len(result.Records))
	}
	for i := range records {
		if result.Records[i].Name != records[i].Name || result.Records[i].NetBankList != records[i].NetBankList {
			t.Fatalf("record %d differs: %+v vs %+v", i, result.Records[i], records[i])
		}
	}
}

func TestImportWorkbookRejectsGarbage(t *testing.T) {
	_, err := ImportWorkbook(strings.NewReader("not a workbook"), ImportOptions{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestWritePayslip(t *testing.T) {
	record := SampleRecords(0, 1)[0]
	var buf bytes.Buffer
	if err := WritePayslip(&buf, sampleSheet(), record); err != nil {
		t.Fatalf("write payslip: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF document")
	}
}

func TestSummarize(t *testing.T) {
	records := []Record{
		Recompute(Record{BasicSalary: 16181, TransportAllowance: 12000, Status: StatusActive}),
		Recompute(Record{BasicSalary: 238000, TransportAllowance: 12000, Advance: 5000, Status: StatusPaid}),
	}
	s := Summarize(records)
	if s.EmployeeCount != 2 || s.StatusCounts[StatusActive] != 1 || s.StatusCounts[StatusPaid] != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.GrossSalary != 278181 || s.PAYE != 39000 || s.Advance != 5000 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.NetBankList != records[0].NetBankList+records[1].NetBankList {
		t.Fatalf("net bank total mismatch: %v", s.NetBankList)
	}
}

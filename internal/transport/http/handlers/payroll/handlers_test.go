package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/platform/metrics"
	"hrpayroll/internal/transport/http/middleware"
)

const (
	testSecret = "handler-test-secret"
	testTenant = "tenant-1"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	router    http.Handler
	audit     *audit.MemoryLog
	collector *metrics.Collector
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ImportMaxBytes == 0 {
		opts.ImportMaxBytes = 1 << 20
	}
	auditLog := audit.NewMemoryLog()
	collector := metrics.New()
	svc := payroll.NewService(payroll.NewMemoryStore(), "RWF")
	svc.OnImportFinished(func(run payroll.ImportRun) {
		collector.RecordImport(run.Status == payroll.ImportFailed, run.Accepted, run.Rejected)
	})
	queue := jobs.New(8, 1)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() {
		cancel()
		queue.Wait()
	})
	svc.UseQueue(queue)
	h := NewHandler(svc, auditLog, auth.StaticPermissions{}, middleware.NewMemoryIdempotencyStore(), opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(testSecret))
	h.RegisterRoutes(r)
	return &testServer{router: r, audit: auditLog, collector: collector}
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "user-" + role, TenantID: testTenant, RoleName: role}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, role, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, role))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, role, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	return s.do(t, role, method, path, body, map[string]string{"Content-Type": "application/json"})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func (s *testServer) createSheet(t *testing.T) payroll.Sheet {
	t.Helper()
	rec := s.doJSON(t, auth.RoleClerk, http.MethodPost, "/payroll/sheets", map[string]string{"name": "October payroll", "period": "2026-10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sheet: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var sheet payroll.Sheet
	decode(t, rec, &sheet)
	return sheet
}

func TestRoutesRequireAuthentication(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(t, "", http.MethodGet, "/payroll/sheets", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateSheetValidation(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.doJSON(t, auth.RoleClerk, http.MethodPost, "/payroll/sheets", map[string]string{"name": "", "period": "Oct 2026"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
	fields, _ := env.Error.Details["fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("expected name and period issues, got %v", env.Error.Details)
	}

	sheet := s.createSheet(t)
	if sheet.Currency != "RWF" || sheet.Period != "2026-10" {
		t.Fatalf("unexpected sheet: %+v", sheet)
	}

	viewer := s.doJSON(t, auth.RoleViewer, http.MethodPost, "/payroll/sheets", map[string]string{"name": "x", "period": "2026-10"})
	if viewer.Code != http.StatusForbidden {
		t.Fatalf("expected viewer to be forbidden, got %d", viewer.Code)
	}
}

func TestImportFlow(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	path := "/payroll/sheets/" + sheet.ID + "/import"

	body := []byte("Names,Basic Salary,Transport Allowance\nJane Uwase,16181,12000\nNo Pay,0,100\n")
	rec := s.do(t, auth.RoleClerk, http.MethodPost, path, body, map[string]string{"Content-Type": "text/csv"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var result importResponse
	decode(t, rec, &result)
	if result.Accepted != 1 || result.Rejected != 1 || result.Status != payroll.ImportSuccess {
		t.Fatalf("unexpected import result: %+v", result)
	}
	if !strings.Contains(result.Errors[0], "Row 2") {
		t.Fatalf("expected row-numbered error, got %q", result.Errors[0])
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/payroll/sheets/"+sheet.ID+"/records", nil, nil)
	var records []payroll.Record
	decode(t, rec, &records)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	jane := records[0]
	if jane.GrossSalary != 28181 || jane.NetPayB4CBHI != 25841 || jane.Mutuelle != 129 || jane.NetBankList != 25712 {
		t.Fatalf("unexpected figures: %+v", jane)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/payroll/sheets/"+sheet.ID+"/imports", nil, nil)
	var runs []payroll.ImportRun
	decode(t, rec, &runs)
	if len(runs) != 1 || runs[0].Accepted != 1 || runs[0].Rejected != 1 {
		t.Fatalf("unexpected import runs: %+v", runs)
	}

	snap := s.collector.Snapshot()
	if snap["importsTotal"].(uint64) != 1 || snap["importRowsRejected"].(uint64) != 1 {
		t.Fatalf("unexpected metrics: %v", snap)
	}
	events, _, _ := s.audit.List(context.Background(), testTenant, audit.Filter{Action: audit.ActionImport}, 10, 0)
	if len(events) != 1 || events[0].EntityID != sheet.ID {
		t.Fatalf("expected one import audit event, got %+v", events)
	}
}

func TestImportStructuralFailures(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	path := "/payroll/sheets/" + sheet.ID + "/import"

	rec := s.do(t, auth.RoleClerk, http.MethodPost, path, []byte("Names,Post\nJane,Guard\n"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error.Code != "import_failed" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	missing, _ := env.Error.Details["missing"].([]any)
	if len(missing) != 2 {
		t.Fatalf("expected two missing columns, got %v", env.Error.Details)
	}

	zip := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 32)...)
	rec = s.do(t, auth.RoleClerk, http.MethodPost, path, zip, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected binary upload to be rejected, got %d", rec.Code)
	}

	rec = s.do(t, auth.RoleClerk, http.MethodPost, path, []byte("Names,Basic Salary,Transport Allowance\nA,0,1\n"), nil)
	env = decode(t, rec, nil)
	if rec.Code != http.StatusUnprocessableEntity || len(env.Error.Details["errors"].([]any)) != 1 {
		t.Fatalf("expected no-valid-rows failure with row errors, got %d %s", rec.Code, rec.Body.String())
	}

	if snap := s.collector.Snapshot(); snap["importsFailedTotal"].(uint64) != 3 {
		t.Fatalf("expected 3 failed imports, got %v", snap["importsFailedTotal"])
	}
}

func TestImportPermissionsAndUnknownSheet(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	body := []byte("Names,Basic Salary,Transport Allowance\nJane,100,0\n")

	if rec := s.do(t, auth.RoleViewer, http.MethodPost, "/payroll/sheets/"+sheet.ID+"/import", body, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected viewer import to be forbidden, got %d", rec.Code)
	}
	if rec := s.do(t, auth.RoleClerk, http.MethodPost, "/payroll/sheets/missing/import", body, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sheet, got %d", rec.Code)
	}
}

func TestImportMultipartAndSizeLimit(t *testing.T) {
	s := newTestServer(t, Options{ImportMaxBytes: 512})
	sheet := s.createSheet(t)
	path := "/payroll/sheets/" + sheet.ID + "/import"

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "october.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("Names,Basic Salary,Transport Allowance\nJane,16181,12000\n"))
	_ = mw.Close()

	rec := s.do(t, auth.RoleClerk, http.MethodPost, path, form.Bytes(), map[string]string{"Content-Type": mw.FormDataContentType()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected multipart import to pass, got %d (%s)", rec.Code, rec.Body.String())
	}

	large := "Names,Basic Salary,Transport Allowance\n" + strings.Repeat("Jane,16181,12000\n", 40)
	rec = s.do(t, auth.RoleClerk, http.MethodPost, path, []byte(large), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestImportIdempotencyReplay(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	path := "/payroll/sheets/" + sheet.ID + "/import"
	body := []byte("Names,Basic Salary,Transport Allowance\nJane,16181,12000\n")
	header := map[string]string{middleware.IdempotencyHeader: "upload-1"}

	first := s.do(t, auth.RoleClerk, http.MethodPost, path, body, header)
	second := s.do(t, auth.RoleClerk, http.MethodPost, path, body, header)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("unexpected codes %d / %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed response")
	}

	rec := s.do(t, auth.RoleViewer, http.MethodGet, "/payroll/sheets/"+sheet.ID+"/records", nil, nil)
	var records []payroll.Record
	decode(t, rec, &records)
	if len(records) != 1 {
		t.Fatalf("expected a retried upload to import once, got %d records", len(records))
	}
}

func TestRecordLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	base := "/payroll/sheets/" + sheet.ID + "/records"

	rec := s.doJSON(t, auth.RoleClerk, http.MethodPost, base, map[string]any{
		"name": "Jane Uwase", "account": "4001-2233-4455", "basicSalary": 16181, "transportAllowance": 12000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: %d (%s)", rec.Code, rec.Body.String())
	}
	var record payroll.Record
	decode(t, rec, &record)
	if record.No != 1 || record.NetBankList != 25712 || record.Status != payroll.StatusActive {
		t.Fatalf("unexpected record: %+v", record)
	}

	rec = s.doJSON(t, auth.RoleClerk, http.MethodPost, base, map[string]any{"name": "Zero", "basicSalary": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero salary, got %d", rec.Code)
	}

	rec = s.doJSON(t, auth.RoleClerk, http.MethodPut, base+"/"+record.ID+"/inputs", map[string]any{
		"basicSalary": 16181, "transportAllowance": 12000, "advance": 5000,
	})
	var updated payroll.Record
	decode(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.NetBankList != 20712 {
		t.Fatalf("unexpected inputs update: %d %+v", rec.Code, updated)
	}

	if rec := s.doJSON(t, auth.RoleClerk, http.MethodPut, base+"/"+record.ID+"/status", map[string]string{"status": "paid"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected clerk status change to be forbidden, got %d", rec.Code)
	}
	if rec := s.doJSON(t, auth.RoleManager, http.MethodPut, base+"/"+record.ID+"/status", map[string]string{"status": "archived"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid status to fail, got %d", rec.Code)
	}
	if rec := s.doJSON(t, auth.RoleManager, http.MethodPut, base+"/"+record.ID+"/status", map[string]string{"status": "paid"}); rec.Code != http.StatusOK {
		t.Fatalf("expected status change, got %d", rec.Code)
	}

	rec = s.doJSON(t, auth.RoleClerk, http.MethodPut, base+"/"+record.ID, map[string]string{"name": "Jane U.", "post": "Guard"})
	decode(t, rec, &updated)
	if updated.Name != "Jane U." || updated.NetBankList != 20712 {
		t.Fatalf("details update should keep figures: %+v", updated)
	}

	rec = s.do(t, auth.RoleClerk, http.MethodGet, base+"/"+record.ID+"/payslip.pdf", nil, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf payslip, got %d", rec.Code)
	}

	if rec := s.do(t, auth.RoleClerk, http.MethodDelete, base+"/"+record.ID, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := s.do(t, auth.RoleClerk, http.MethodGet, base+"/"+record.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	events, _, _ := s.audit.List(context.Background(), testTenant, audit.Filter{EntityID: record.ID}, 20, 0)
	if len(events) != 5 {
		t.Fatalf("expected 5 audit events for the record, got %d", len(events))
	}
	for _, evt := range events {
		if strings.Contains(string(evt.After), "4001-2233") {
			t.Fatalf("audit trail leaks account number: %s", evt.After)
		}
	}
}

func TestSampleSummaryAndExports(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	base := "/payroll/sheets/" + sheet.ID

	rec := s.doJSON(t, auth.RoleClerk, http.MethodPost, base+"/records/sample", map[string]int{"count": 3})
	var sample []payroll.Record
	decode(t, rec, &sample)
	if rec.Code != http.StatusCreated || len(sample) != 3 {
		t.Fatalf("sample: %d, %d records", rec.Code, len(sample))
	}
	if rec := s.doJSON(t, auth.RoleClerk, http.MethodPost, base+"/records/sample", map[string]int{"count": 500}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected count bound, got %d", rec.Code)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, base+"/summary", nil, nil)
	var summary payroll.SheetSummary
	decode(t, rec, &summary)
	if summary.EmployeeCount != 3 || summary.StatusCounts[payroll.StatusActive] != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if rec := s.do(t, auth.RoleViewer, http.MethodGet, base+"/export.csv", nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected viewer export to be forbidden, got %d", rec.Code)
	}
	rec = s.do(t, auth.RoleAuditor, http.MethodGet, base+"/export.csv", nil, nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("csv export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "payroll-2026-10.csv") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if lines := strings.Count(strings.TrimSpace(rec.Body.String()), "\n"); lines != 3 {
		t.Fatalf("expected header plus 3 rows, got %d newlines", lines)
	}

	rec = s.do(t, auth.RoleAuditor, http.MethodGet, base+"/export.xlsx", nil, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx export: %d", rec.Code)
	}
}

func TestTemplateAndCalculate(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, auth.RoleViewer, http.MethodGet, "/payroll/template.csv", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Names") {
		t.Fatalf("template: %d", rec.Code)
	}

	rec = s.doJSON(t, auth.RoleViewer, http.MethodPost, "/payroll/calculate", map[string]any{"basicSalary": 16181, "transportAllowance": 12000})
	var preview payroll.Record
	decode(t, rec, &preview)
	if rec.Code != http.StatusOK || preview.NetBankList != 25712 || preview.ID != "" {
		t.Fatalf("unexpected preview: %d %+v", rec.Code, preview)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodPost, "/payroll/calculate", []byte("{not json"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestAsyncImport(t *testing.T) {
	s := newTestServer(t, Options{})
	sheet := s.createSheet(t)
	base := "/payroll/sheets/" + sheet.ID

	body := []byte("Names,Basic Salary,Transport Allowance\nJane,16181,12000\nJohn,50000,0\n,1,1\n")
	rec := s.do(t, auth.RoleClerk, http.MethodPost, base+"/import?async=true", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	var run payroll.ImportRun
	decode(t, rec, &run)
	if run.ID == "" {
		t.Fatalf("expected run id, got %+v", run)
	}

	deadline := time.Now().Add(2 * time.Second)
	for run.FinishedAt == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = s.do(t, auth.RoleViewer, http.MethodGet, base+"/imports/"+run.ID, nil, nil)
		decode(t, rec, &run)
	}
	if run.Status != payroll.ImportSuccess || run.Accepted != 2 || run.Rejected != 1 {
		t.Fatalf("unexpected finished run: %+v", run)
	}
	if run.Processed != 3 || run.Total != 3 {
		t.Fatalf("expected progress 3/3, got %d/%d", run.Processed, run.Total)
	}

	if rec := s.do(t, auth.RoleViewer, http.MethodGet, base+"/imports/unknown", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", rec.Code)
	}
}

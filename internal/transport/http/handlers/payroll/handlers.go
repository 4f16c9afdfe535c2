package payrollhandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
	"hrpayroll/internal/transport/http/shared"
)

const defaultSampleCount = 10

type Options struct {
	MaxBodyBytes   int64
	ImportMaxBytes int64
	AcceptXLSX     bool
}

type Handler struct {
	Service *payroll.Service
	Audit   audit.Log
	Perms   middleware.PermissionStore
	Idem    middleware.IdempotencyStore
	opts    Options
}

func NewHandler(service *payroll.Service, auditLog audit.Log, perms middleware.PermissionStore, idem middleware.IdempotencyStore, opts Options) *Handler {
	return &Handler{Service: service, Audit: auditLog, Perms: perms, Idem: idem, opts: opts}
}

type sheetPayload struct {
	Name     string `json:"name"`
	Period   string `json:"period"`
	Currency string `json:"currency"`
}

type recordPayload struct {
	Name               string   `json:"name"`
	Post               string   `json:"post"`
	Account            string   `json:"account"`
	BankName           string   `json:"bankName"`
	Telephone          string   `json:"telephone"`
	IDNumber           string   `json:"idNumber"`
	BasicSalary        *float64 `json:"basicSalary"`
	TransportAllowance *float64 `json:"transportAllowance"`
	Advance            *float64 `json:"advance"`
	Status             string   `json:"status"`
}

func (p recordPayload) input() payroll.RecordInput {
	return payroll.RecordInput{
		Name:               p.Name,
		Post:               p.Post,
		Account:            p.Account,
		BankName:           p.BankName,
		Telephone:          p.Telephone,
		IDNumber:           p.IDNumber,
		BasicSalary:        valueOf(p.BasicSalary),
		TransportAllowance: valueOf(p.TransportAllowance),
		Advance:            valueOf(p.Advance),
		Status:             payroll.Status(p.Status),
	}
}

type inputsPayload struct {
	BasicSalary        *float64 `json:"basicSalary"`
	TransportAllowance *float64 `json:"transportAllowance"`
	Advance            *float64 `json:"advance"`
}

type statusPayload struct {
	Status string `json:"status"`
}

type samplePayload struct {
	Count int `json:"count"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermPayrollRead, h.Perms)
	write := middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)
	export := middleware.RequirePermission(auth.PermPayrollExport, h.Perms)
	status := middleware.RequirePermission(auth.PermPayrollStatus, h.Perms)
	importer := middleware.RequirePermission(auth.PermPayrollImport, h.Perms)

	r.Route("/payroll", func(r chi.Router) {
		r.With(importer, middleware.BodyLimit(h.opts.ImportMaxBytes), middleware.Idempotent(h.Idem, "payroll.import")).Post("/sheets/{sheetID}/import", h.handleImport)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BodyLimit(h.opts.MaxBodyBytes))

			r.With(read).Get("/template.csv", h.handleTemplate)
			r.With(read).Post("/calculate", h.handleCalculate)

			r.With(read).Get("/sheets", h.handleListSheets)
			r.With(write).Post("/sheets", h.handleCreateSheet)
			r.With(read).Get("/sheets/{sheetID}", h.handleGetSheet)
			r.With(read).Get("/sheets/{sheetID}/summary", h.handleSummary)
			r.With(read).Get("/sheets/{sheetID}/imports", h.handleListImports)
			r.With(read).Get("/sheets/{sheetID}/imports/{runID}", h.handleGetImport)
			r.With(export).Get("/sheets/{sheetID}/export.csv", h.handleExportCSV)
			r.With(export).Get("/sheets/{sheetID}/export.xlsx", h.handleExportXLSX)

			r.With(read).Get("/sheets/{sheetID}/records", h.handleListRecords)
			r.With(write).Post("/sheets/{sheetID}/records", h.handleCreateRecord)
			r.With(write).Post("/sheets/{sheetID}/records/sample", h.handleSample)
			r.With(read).Get("/sheets/{sheetID}/records/{recordID}", h.handleGetRecord)
			r.With(write).Put("/sheets/{sheetID}/records/{recordID}", h.handleUpdateDetails)
			r.With(write).Put("/sheets/{sheetID}/records/{recordID}/inputs", h.handleUpdateInputs)
			r.With(status).Put("/sheets/{sheetID}/records/{recordID}/status", h.handleSetStatus)
			r.With(write).Delete("/sheets/{sheetID}/records/{recordID}", h.handleDeleteRecord)
			r.With(export).Get("/sheets/{sheetID}/records/{recordID}/payslip.pdf", h.handlePayslip)
		})
	})
}

func (h *Handler) handleListSheets(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sheets, err := h.Service.ListSheets(r.Context(), user.TenantID)
	if err != nil {
		h.fail(w, r, err, "payroll_sheets_failed", "failed to list payroll sheets")
		return
	}
	api.Success(w, sheets, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateSheet(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload sheetPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Period("period", payload.Period)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	sheet, err := h.Service.CreateSheet(r.Context(), user.TenantID, payload.Name, payload.Period, payload.Currency)
	if err != nil {
		h.fail(w, r, err, "payroll_sheet_create_failed", "failed to create payroll sheet")
		return
	}
	h.audit(r, user, audit.ActionSheetCreate, audit.EntitySheet, sheet.ID, nil, sheet)
	api.Created(w, sheet, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sheet, err := h.Service.GetSheet(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.fail(w, r, err, "payroll_sheet_failed", "failed to load payroll sheet")
		return
	}
	api.Success(w, sheet, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.Summary(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.fail(w, r, err, "payroll_summary_failed", "failed to summarize payroll sheet")
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	records, err := h.Service.ListRecords(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.fail(w, r, err, "payroll_records_failed", "failed to list payroll records")
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	record, err := h.Service.GetRecord(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err, "payroll_record_failed", "failed to load payroll record")
		return
	}
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload recordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Money("basicSalary", payload.BasicSalary, true)
	v.Money("transportAllowance", payload.TransportAllowance, false)
	if payload.Advance != nil {
		v.Money("advance", payload.Advance, false)
	}
	v.Enum("status", payload.Status, statusNames(), "must be one of active, inactive, paid")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	record, err := h.Service.AddRecord(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), payload.input())
	if err != nil {
		h.fail(w, r, err, "payroll_record_create_failed", "failed to create payroll record")
		return
	}
	h.audit(r, user, audit.ActionRecordCreate, audit.EntityRecord, record.ID, nil, redact(record))
	api.Created(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateInputs(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload inputsPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Money("basicSalary", payload.BasicSalary, true)
	v.Money("transportAllowance", payload.TransportAllowance, false)
	v.Money("advance", payload.Advance, false)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	before, after, err := h.Service.UpdateInputs(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), chi.URLParam(r, "recordID"),
		*payload.BasicSalary, *payload.TransportAllowance, *payload.Advance)
	if err != nil {
		h.fail(w, r, err, "payroll_record_update_failed", "failed to update payroll record")
		return
	}
	h.audit(r, user, audit.ActionRecordInputs, audit.EntityRecord, after.ID, redact(before), redact(after))
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload payroll.RecordDetails
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	record, err := h.Service.UpdateDetails(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), chi.URLParam(r, "recordID"), payload)
	if err != nil {
		h.fail(w, r, err, "payroll_record_update_failed", "failed to update payroll record")
		return
	}
	h.audit(r, user, audit.ActionRecordUpdate, audit.EntityRecord, record.ID, nil, redact(record))
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload statusPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("status", payload.Status, "is required")
	v.Enum("status", payload.Status, statusNames(), "must be one of active, inactive, paid")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	record, err := h.Service.SetStatus(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), chi.URLParam(r, "recordID"), payroll.Status(payload.Status))
	if err != nil {
		h.fail(w, r, err, "payroll_status_failed", "failed to update record status")
		return
	}
	h.audit(r, user, audit.ActionRecordStatus, audit.EntityRecord, record.ID, nil, map[string]any{"status": record.Status})
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	recordID := chi.URLParam(r, "recordID")
	if err := h.Service.DeleteRecord(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), recordID); err != nil {
		h.fail(w, r, err, "payroll_record_delete_failed", "failed to delete payroll record")
		return
	}
	h.audit(r, user, audit.ActionRecordDelete, audit.EntityRecord, recordID, nil, nil)
	api.Success(w, map[string]string{"id": recordID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSample(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	payload := samplePayload{Count: defaultSampleCount}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, err, "invalid_payload", "invalid request payload")
		return
	}

	sheetID := chi.URLParam(r, "sheetID")
	records, err := h.Service.GenerateSample(r.Context(), user.TenantID, sheetID, payload.Count)
	if err != nil {
		h.fail(w, r, err, "payroll_sample_failed", "failed to generate sample records")
		return
	}
	h.audit(r, user, audit.ActionSample, audit.EntitySheet, sheetID, nil, map[string]any{"count": len(records)})
	api.Created(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var payload recordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Money("basicSalary", payload.BasicSalary, true)
	v.Money("transportAllowance", payload.TransportAllowance, false)
	if payload.Advance != nil {
		v.Money("advance", payload.Advance, false)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	input := payload.input()
	if input.Name == "" {
		input.Name = "preview"
	}
	record, err := h.Service.Preview(input)
	if err != nil {
		h.fail(w, r, err, "payroll_calculate_failed", "failed to calculate payroll record")
		return
	}
	record.Name = payload.Name
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
	}
	return user, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.GetRequestID(r.Context()))
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

// fail maps domain errors onto the response envelope. Anything it does not
// recognise is logged and reported with the given code as a 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	var validation *payroll.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &validation):
		shared.FailValidation(w, requestID, issuesOf(validation))
	case errors.Is(err, payroll.ErrInvalidStatus):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "status", Reason: err.Error()}})
	case errors.Is(err, payroll.ErrSheetNotFound), errors.Is(err, payroll.ErrRecordNotFound), errors.Is(err, payroll.ErrImportRunNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrQueueUnavailable):
		api.Fail(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error(), requestID)
	case errors.As(err, &maxErr):
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
	case code == "invalid_payload":
		api.Fail(w, http.StatusBadRequest, code, message, requestID)
	default:
		slog.Error(message, "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}

func issuesOf(err *payroll.ValidationError) []shared.ValidationIssue {
	issues := make([]shared.ValidationIssue, 0, len(err.Fields))
	for field, reason := range err.Fields {
		issues = append(issues, shared.ValidationIssue{Field: field, Reason: reason})
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	return issues
}

func (h *Handler) audit(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	err := h.Audit.Record(r.Context(), audit.Entry{
		TenantID:   user.TenantID,
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		Before:     before,
		After:      after,
	})
	if err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}

// redact masks banking identifiers before a record is written to the audit
// trail.
func redact(record payroll.Record) payroll.Record {
	record.Account = mask(record.Account)
	record.IDNumber = mask(record.IDNumber)
	return record
}

func mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

func statusNames() []string {
	names := make([]string, len(payroll.Statuses))
	for i, s := range payroll.Statuses {
		names[i] = string(s)
	}
	return names
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

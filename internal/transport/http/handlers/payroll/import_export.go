package payrollhandler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type importResponse struct {
	Status   payroll.ImportStatus `json:"status"`
	Accepted int                  `json:"accepted"`
	Rejected int                  `json:"rejected"`
	Errors   []string             `json:"errors"`
	Records  []payroll.Record     `json:"records"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	data, err := h.readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("file exceeds %d bytes", h.opts.ImportMaxBytes), requestID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "unable to read uploaded file", requestID)
		return
	}

	sheetID := chi.URLParam(r, "sheetID")
	if r.URL.Query().Get("async") == "true" {
		run, err := h.Service.ImportAsync(r.Context(), user.TenantID, sheetID, data, h.opts.AcceptXLSX)
		if err != nil {
			h.fail(w, r, err, "payroll_import_failed", "failed to queue payroll import")
			return
		}
		h.audit(r, user, audit.ActionImport, audit.EntitySheet, sheetID, nil, map[string]any{"runId": run.ID, "async": true})
		api.Accepted(w, run, requestID)
		return
	}

	result, err := h.Service.ImportCSV(r.Context(), user.TenantID, sheetID, data, h.opts.AcceptXLSX)
	if err != nil {
		var importErr *payroll.ImportError
		if errors.As(err, &importErr) {
			details := map[string]any{"errors": result.Errors}
			if len(importErr.Missing) > 0 {
				missing := make([]string, len(importErr.Missing))
				for i, f := range importErr.Missing {
					missing[i] = f.Label()
				}
				details["missing"] = missing
			}
			api.FailWithDetails(w, http.StatusUnprocessableEntity, "import_failed", importErr.Error(), details, requestID)
			return
		}
		h.fail(w, r, err, "payroll_import_failed", "failed to import payroll file")
		return
	}

	response := importResponse{
		Status:   result.Status,
		Accepted: len(result.Records),
		Rejected: len(result.Errors),
		Errors:   result.Errors,
		Records:  result.Records,
	}
	h.audit(r, user, audit.ActionImport, audit.EntitySheet, sheetID, nil, map[string]any{
		"accepted": response.Accepted,
		"rejected": response.Rejected,
	})
	api.Success(w, response, requestID)
}

// readUpload accepts either a multipart form with a "file" part or the raw
// file as the request body.
func (h *Handler) readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			defer part.Close()
			return io.ReadAll(part)
		}
		part.Close()
	}
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	runs, err := h.Service.ListImportRuns(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.fail(w, r, err, "payroll_imports_failed", "failed to list imports")
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetImport(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	run, err := h.Service.GetImportRun(r.Context(), user.TenantID, chi.URLParam(r, "sheetID"), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err, "payroll_import_failed", "failed to load import run")
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := payroll.Template()
	if err != nil {
		h.fail(w, r, err, "payroll_template_failed", "failed to build template")
		return
	}
	writeAttachment(w, "text/csv", "payroll-template.csv", body)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sheet, records, ok := h.loadSheet(w, r, user.TenantID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := payroll.WriteCSV(&buf, records); err != nil {
		h.fail(w, r, err, "payroll_export_failed", "failed to export payroll sheet")
		return
	}
	writeAttachment(w, "text/csv", exportName(sheet, "csv"), buf.Bytes())
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sheet, records, ok := h.loadSheet(w, r, user.TenantID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := payroll.WriteWorkbook(&buf, sheet, records); err != nil {
		h.fail(w, r, err, "payroll_export_failed", "failed to export payroll sheet")
		return
	}
	writeAttachment(w, xlsxContentType, exportName(sheet, "xlsx"), buf.Bytes())
}

func (h *Handler) handlePayslip(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sheetID := chi.URLParam(r, "sheetID")
	sheet, err := h.Service.GetSheet(r.Context(), user.TenantID, sheetID)
	if err != nil {
		h.fail(w, r, err, "payroll_payslip_failed", "failed to render payslip")
		return
	}
	record, err := h.Service.GetRecord(r.Context(), user.TenantID, sheetID, chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err, "payroll_payslip_failed", "failed to render payslip")
		return
	}
	var buf bytes.Buffer
	if err := payroll.WritePayslip(&buf, sheet, record); err != nil {
		h.fail(w, r, err, "payroll_payslip_failed", "failed to render payslip")
		return
	}
	writeAttachment(w, "application/pdf", fmt.Sprintf("payslip-%s-%d.pdf", sheet.Period, record.No), buf.Bytes())
}

func (h *Handler) loadSheet(w http.ResponseWriter, r *http.Request, tenantID string) (payroll.Sheet, []payroll.Record, bool) {
	sheetID := chi.URLParam(r, "sheetID")
	sheet, err := h.Service.GetSheet(r.Context(), tenantID, sheetID)
	if err != nil {
		h.fail(w, r, err, "payroll_export_failed", "failed to export payroll sheet")
		return payroll.Sheet{}, nil, false
	}
	records, err := h.Service.ListRecords(r.Context(), tenantID, sheetID)
	if err != nil {
		h.fail(w, r, err, "payroll_export_failed", "failed to export payroll sheet")
		return payroll.Sheet{}, nil, false
	}
	return sheet, records, true
}

func exportName(sheet payroll.Sheet, ext string) string {
	return fmt.Sprintf("payroll-%s.%s", sheet.Period, ext)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

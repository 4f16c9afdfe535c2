package payroll

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hrpayroll/internal/platform/jobs"
)

const (
	importRunHistoryLimit = 20
	progressEvery         = 100
)

// Enqueuer runs work in the background. Submit reports false when the work
// was not accepted.
type Enqueuer interface {
	Submit(job jobs.Job) bool
}

type Service struct {
	store           StoreAPI
	defaultCurrency string
	queue           Enqueuer
	onImport        func(ImportRun)
}

func NewService(store StoreAPI, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	return &Service{store: store, defaultCurrency: defaultCurrency}
}

// UseQueue enables ImportAsync.
func (s *Service) UseQueue(q Enqueuer) {
	s.queue = q
}

// OnImportFinished registers fn to be called with every finished import run.
func (s *Service) OnImportFinished(fn func(ImportRun)) {
	s.onImport = fn
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSheet(ctx context.Context, tenantID, name, period, currency string) (Sheet, error) {
	name = strings.TrimSpace(name)
	period = strings.TrimSpace(period)
	issues := map[string]string{}
	if name == "" {
		issues["name"] = "is required"
	}
	if _, err := time.Parse("2006-01", period); err != nil {
		issues["period"] = "must be a month in YYYY-MM format"
	}
	if len(issues) > 0 {
		return Sheet{}, &ValidationError{Fields: issues}
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	return s.store.CreateSheet(ctx, tenantID, Sheet{Name: name, Period: period, Currency: currency})
}

func (s *Service) ListSheets(ctx context.Context, tenantID string) ([]Sheet, error) {
	return s.store.ListSheets(ctx, tenantID)
}

func (s *Service) GetSheet(ctx context.Context, tenantID, sheetID string) (Sheet, error) {
	return s.store.GetSheet(ctx, tenantID, sheetID)
}

func (s *Service) ListRecords(ctx context.Context, tenantID, sheetID string) ([]Record, error) {
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, tenantID, sheetID)
}

func (s *Service) GetRecord(ctx context.Context, tenantID, sheetID, recordID string) (Record, error) {
	return s.store.GetRecord(ctx, tenantID, sheetID, recordID)
}

// AddRecord creates one employee line by hand. The record gets the next
// sequence number on the sheet and all derived figures are calculated.
func (s *Service) AddRecord(ctx context.Context, tenantID, sheetID string, input RecordInput) (Record, error) {
	if err := validateInputs(strings.TrimSpace(input.Name), input.BasicSalary, input.TransportAllowance, input.Advance); err != nil {
		return Record{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return Record{}, err
	}
	count, err := s.store.CountRecords(ctx, tenantID, sheetID)
	if err != nil {
		return Record{}, err
	}

	record := Recompute(Record{
		No:                 count + 1,
		Name:               strings.TrimSpace(input.Name),
		Post:               strings.TrimSpace(input.Post),
		Account:            strings.TrimSpace(input.Account),
		BankName:           strings.TrimSpace(input.BankName),
		Telephone:          strings.TrimSpace(input.Telephone),
		IDNumber:           strings.TrimSpace(input.IDNumber),
		BasicSalary:        input.BasicSalary,
		TransportAllowance: input.TransportAllowance,
		Advance:            input.Advance,
		Status:             status,
	})
	inserted, err := s.store.InsertRecords(ctx, tenantID, sheetID, []Record{record})
	if err != nil {
		return Record{}, err
	}
	return inserted[0], nil
}

// UpdateInputs edits basic salary, transport allowance and advance and
// recalculates every derived field. It returns the record before and after.
func (s *Service) UpdateInputs(ctx context.Context, tenantID, sheetID, recordID string, basic, transport, advance float64) (Record, Record, error) {
	before, err := s.store.GetRecord(ctx, tenantID, sheetID, recordID)
	if err != nil {
		return Record{}, Record{}, err
	}
	if err := validateInputs(before.Name, basic, transport, advance); err != nil {
		return Record{}, Record{}, err
	}
	next := before
	next.BasicSalary = basic
	next.TransportAllowance = transport
	next.Advance = advance
	after, err := s.store.UpdateRecord(ctx, tenantID, Recompute(next))
	if err != nil {
		return Record{}, Record{}, err
	}
	return before, after, nil
}

func (s *Service) UpdateDetails(ctx context.Context, tenantID, sheetID, recordID string, details RecordDetails) (Record, error) {
	record, err := s.store.GetRecord(ctx, tenantID, sheetID, recordID)
	if err != nil {
		return Record{}, err
	}
	name := strings.TrimSpace(details.Name)
	if name == "" {
		return Record{}, &ValidationError{Fields: map[string]string{"name": "is required"}}
	}
	record.Name = name
	record.Post = strings.TrimSpace(details.Post)
	record.Account = strings.TrimSpace(details.Account)
	record.BankName = strings.TrimSpace(details.BankName)
	record.Telephone = strings.TrimSpace(details.Telephone)
	record.IDNumber = strings.TrimSpace(details.IDNumber)
	return s.store.UpdateRecord(ctx, tenantID, record)
}

func (s *Service) SetStatus(ctx context.Context, tenantID, sheetID, recordID string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	record, err := s.store.GetRecord(ctx, tenantID, sheetID, recordID)
	if err != nil {
		return Record{}, err
	}
	record.Status = status
	return s.store.UpdateRecord(ctx, tenantID, record)
}

func (s *Service) DeleteRecord(ctx context.Context, tenantID, sheetID, recordID string) error {
	return s.store.DeleteRecord(ctx, tenantID, sheetID, recordID)
}

func (s *Service) GenerateSample(ctx context.Context, tenantID, sheetID string, count int) ([]Record, error) {
	if count <= 0 || count > MaxSampleRecords {
		return nil, &ValidationError{Fields: map[string]string{"count": "must be between 1 and 200"}}
	}
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return nil, err
	}
	existing, err := s.store.CountRecords(ctx, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	return s.store.InsertRecords(ctx, tenantID, sheetID, SampleRecords(existing, count))
}

// Preview recalculates a record without saving it, for edit dialogs.
func (s *Service) Preview(input RecordInput) (Record, error) {
	if err := validateInputs(strings.TrimSpace(input.Name), input.BasicSalary, input.TransportAllowance, input.Advance); err != nil {
		return Record{}, err
	}
	return Recompute(Record{
		Name:               strings.TrimSpace(input.Name),
		Post:               input.Post,
		Account:            input.Account,
		BankName:           input.BankName,
		Telephone:          input.Telephone,
		IDNumber:           input.IDNumber,
		BasicSalary:        input.BasicSalary,
		TransportAllowance: input.TransportAllowance,
		Advance:            input.Advance,
		Status:             input.Status,
	}), nil
}

func (s *Service) Summary(ctx context.Context, tenantID, sheetID string) (SheetSummary, error) {
	records, err := s.ListRecords(ctx, tenantID, sheetID)
	if err != nil {
		return SheetSummary{}, err
	}
	return Summarize(records), nil
}

// ImportCSV parses data and appends the accepted rows to the sheet. Zip or
// OLE spreadsheets are rejected by the text pipeline unless acceptWorkbook is
// set, in which case they are read with ImportWorkbook instead.
func (s *Service) ImportCSV(ctx context.Context, tenantID, sheetID string, data []byte, acceptWorkbook bool) (ImportResult, error) {
	source, parse := importParser(data, acceptWorkbook)
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return ImportResult{}, err
	}
	run, err := s.store.CreateImportRun(ctx, tenantID, sheetID, source)
	if err != nil {
		return ImportResult{}, err
	}
	return s.executeImport(ctx, tenantID, run, parse)
}

// ImportAsync records a processing run and hands the import to the queue.
// The caller polls GetImportRun for the outcome.
func (s *Service) ImportAsync(ctx context.Context, tenantID, sheetID string, data []byte, acceptWorkbook bool) (ImportRun, error) {
	if s.queue == nil {
		return ImportRun{}, ErrQueueUnavailable
	}
	source, parse := importParser(data, acceptWorkbook)
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return ImportRun{}, err
	}
	run, err := s.store.CreateImportRun(ctx, tenantID, sheetID, source)
	if err != nil {
		return ImportRun{}, err
	}

	accepted := s.queue.Submit(jobs.Job{
		Name:     "payroll_import",
		TenantID: tenantID,
		Run: func(jobCtx context.Context) error {
			_, err := s.executeImport(jobCtx, tenantID, run, parse)
			return err
		},
		Abandon: func() {
			abandoned := run
			abandoned.Status = ImportFailed
			abandoned.Errors = []string{"import cancelled before it started; upload the file again"}
			s.finishRun(context.Background(), tenantID, abandoned)
		},
	})
	if !accepted {
		run.Status = ImportFailed
		run.Errors = []string{ErrQueueUnavailable.Error()}
		s.finishRun(ctx, tenantID, run)
		return ImportRun{}, ErrQueueUnavailable
	}
	return run, nil
}

func (s *Service) ListImportRuns(ctx context.Context, tenantID, sheetID string) ([]ImportRun, error) {
	if _, err := s.store.GetSheet(ctx, tenantID, sheetID); err != nil {
		return nil, err
	}
	return s.store.ListImportRuns(ctx, tenantID, sheetID, importRunHistoryLimit)
}

func (s *Service) GetImportRun(ctx context.Context, tenantID, sheetID, runID string) (ImportRun, error) {
	run, err := s.store.GetImportRun(ctx, tenantID, runID)
	if err != nil {
		return ImportRun{}, err
	}
	if run.SheetID != sheetID {
		return ImportRun{}, ErrImportRunNotFound
	}
	return run, nil
}

type parseFunc func(ImportOptions) (ImportResult, error)

func importParser(data []byte, acceptWorkbook bool) (string, parseFunc) {
	if acceptWorkbook && IsWorkbook(data) {
		return ImportSourceWorkbook, func(opts ImportOptions) (ImportResult, error) {
			return ImportWorkbook(bytes.NewReader(data), opts)
		}
	}
	return ImportSourceCSV, func(opts ImportOptions) (ImportResult, error) {
		return Import(data, opts)
	}
}

func (s *Service) executeImport(ctx context.Context, tenantID string, run ImportRun, parse parseFunc) (ImportResult, error) {
	existing, err := s.store.CountRecords(ctx, tenantID, run.SheetID)
	if err != nil {
		run.Status = ImportFailed
		run.Errors = []string{"reading sheet failed"}
		s.finishRun(ctx, tenantID, run)
		return ImportResult{}, err
	}

	started := time.Now()
	result, importErr := parse(ImportOptions{
		StartNo:       existing,
		DefaultStatus: StatusActive,
		OnProgress: func(done, total int) {
			if done%progressEvery != 0 && done != total {
				return
			}
			if err := s.store.UpdateImportProgress(ctx, tenantID, run.ID, done, total); err != nil {
				slog.Debug("import progress update failed", "runId", run.ID, "err", err)
			}
		},
	})
	if importErr == nil {
		inserted, err := s.store.InsertRecords(ctx, tenantID, run.SheetID, result.Records)
		if err != nil {
			run.Status = ImportFailed
			run.Errors = []string{"saving records failed"}
			s.finishRun(ctx, tenantID, run)
			return ImportResult{}, err
		}
		result.Records = inserted
	}

	run.Status = result.Status
	run.Accepted = len(result.Records)
	run.Errors = result.Errors
	if !IsStructural(importErr) {
		run.Rejected = len(result.Errors)
	}
	s.finishRun(ctx, tenantID, run)

	slog.Info("payroll import finished",
		"tenantId", tenantID,
		"sheetId", run.SheetID,
		"runId", run.ID,
		"source", run.Source,
		"status", run.Status,
		"accepted", run.Accepted,
		"rejected", run.Rejected,
		"durationMs", time.Since(started).Milliseconds(),
	)
	return result, importErr
}

func (s *Service) finishRun(ctx context.Context, tenantID string, run ImportRun) {
	if err := s.store.FinishImportRun(ctx, tenantID, run); err != nil {
		slog.Warn("import run update failed", "runId", run.ID, "err", err)
	}
	if s.onImport != nil {
		s.onImport(run)
	}
}

// IsStructural reports whether err aborted an import before any row was read.
func IsStructural(err error) bool {
	return errors.Is(err, ErrBinaryFile) || errors.Is(err, ErrTooFewLines) || errors.Is(err, ErrMissingColumns)
}

func validateInputs(name string, basic, transport, advance float64) error {
	issues := map[string]string{}
	if name == "" {
		issues["name"] = "is required"
	}
	if basic <= 0 {
		issues["basicSalary"] = "must be greater than 0"
	}
	if transport < 0 {
		issues["transportAllowance"] = "must be 0 or more"
	}
	if advance < 0 {
		issues["advance"] = "must be 0 or more"
	}
	for field, value := range map[string]float64{"basicSalary": basic, "transportAllowance": transport, "advance": advance} {
		if value >= MaxAmount {
			issues[field] = "is out of range"
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Fields: issues}
	}
	return nil
}

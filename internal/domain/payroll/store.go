package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "hrpayroll/internal/platform/crypto"
)

// Store persists sheets, records and import runs in Postgres. Account and
// national ID numbers are sealed with Crypto when it is configured.
type Store struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

const recordColumns = `
    id, sheet_id, no, name, post, account_enc, bank_name, telephone, id_number_enc,
    basic_salary, transport_allowance, advance, gross_salary, paye,
    maternity_employee, maternity_employer, pension_employee6, pension_employer6, pension_employee2,
    total_pension, net_pay_b4_cbhi, mutuelle, net_bank_list, status, created_at, updated_at`

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Store) CreateSheet(ctx context.Context, tenantID string, sheet Sheet) (Sheet, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_sheets (tenant_id, name, period, currency)
    VALUES ($1,$2,$3,$4)
    RETURNING id, created_at
  `, tenantID, sheet.Name, sheet.Period, sheet.Currency).Scan(&sheet.ID, &sheet.CreatedAt)
	if err != nil {
		return Sheet{}, err
	}
	return sheet, nil
}

func (s *Store) ListSheets(ctx context.Context, tenantID string) ([]Sheet, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, period, currency, created_at
    FROM payroll_sheets
    WHERE tenant_id = $1
    ORDER BY period DESC, created_at DESC
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []Sheet
	for rows.Next() {
		var sheet Sheet
		if err := rows.Scan(&sheet.ID, &sheet.Name, &sheet.Period, &sheet.Currency, &sheet.CreatedAt); err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

func (s *Store) GetSheet(ctx context.Context, tenantID, sheetID string) (Sheet, error) {
	var sheet Sheet
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, period, currency, created_at
    FROM payroll_sheets
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, sheetID).Scan(&sheet.ID, &sheet.Name, &sheet.Period, &sheet.Currency, &sheet.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sheet{}, ErrSheetNotFound
	}
	return sheet, err
}

func (s *Store) CountRecords(ctx context.Context, tenantID, sheetID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_records WHERE tenant_id = $1 AND sheet_id = $2", tenantID, sheetID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID, sheetID string) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE tenant_id = $1 AND sheet_id = $2
    ORDER BY no, created_at
  `, tenantID, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) GetRecord(ctx context.Context, tenantID, sheetID, recordID string) (Record, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE tenant_id = $1 AND sheet_id = $2 AND id = $3
  `, tenantID, sheetID, recordID)
	record, err := s.scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return record, err
}

// InsertRecords writes records in one transaction and returns them with ids
// and timestamps filled in.
func (s *Store) InsertRecords(ctx context.Context, tenantID, sheetID string, records []Record) ([]Record, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]Record, 0, len(records))
	for _, record := range records {
		record.SheetID = sheetID
		accountEnc, idEnc, err := s.sealBanking(record)
		if err != nil {
			return nil, err
		}
		err = tx.QueryRow(ctx, `
      INSERT INTO payroll_records (
        tenant_id, sheet_id, no, name, post, account_enc, bank_name, telephone, id_number_enc,
        basic_salary, transport_allowance, advance, gross_salary, paye,
        maternity_employee, maternity_employer, pension_employee6, pension_employer6, pension_employee2,
        total_pension, net_pay_b4_cbhi, mutuelle, net_bank_list, status
      )
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
      RETURNING id, created_at, updated_at
    `, tenantID, sheetID, record.No, record.Name, record.Post, accountEnc, record.BankName, record.Telephone, idEnc,
			record.BasicSalary, record.TransportAllowance, record.Advance, record.GrossSalary, record.PAYE,
			record.MaternityLeaveEmployee, record.MaternityLeaveEmployer, record.RSSBPensionEmployee6, record.RSSBPensionEmployer6, record.RSSBPensionEmployee2,
			record.TotalRSSBContribution, record.NetPayB4CBHI, record.Mutuelle, record.NetBankList, string(record.Status),
		).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert record %q: %w", record.Name, err)
		}
		out = append(out, record)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateRecord(ctx context.Context, tenantID string, record Record) (Record, error) {
	accountEnc, idEnc, err := s.sealBanking(record)
	if err != nil {
		return Record{}, err
	}
	err = s.DB.QueryRow(ctx, `
    UPDATE payroll_records SET
      no = $4, name = $5, post = $6, account_enc = $7, bank_name = $8, telephone = $9, id_number_enc = $10,
      basic_salary = $11, transport_allowance = $12, advance = $13, gross_salary = $14, paye = $15,
      maternity_employee = $16, maternity_employer = $17, pension_employee6 = $18, pension_employer6 = $19,
      pension_employee2 = $20, total_pension = $21, net_pay_b4_cbhi = $22, mutuelle = $23, net_bank_list = $24,
      status = $25, updated_at = now()
    WHERE tenant_id = $1 AND sheet_id = $2 AND id = $3
    RETURNING updated_at
  `, tenantID, record.SheetID, record.ID,
		record.No, record.Name, record.Post, accountEnc, record.BankName, record.Telephone, idEnc,
		record.BasicSalary, record.TransportAllowance, record.Advance, record.GrossSalary, record.PAYE,
		record.MaternityLeaveEmployee, record.MaternityLeaveEmployer, record.RSSBPensionEmployee6, record.RSSBPensionEmployer6,
		record.RSSBPensionEmployee2, record.TotalRSSBContribution, record.NetPayB4CBHI, record.Mutuelle, record.NetBankList,
		string(record.Status),
	).Scan(&record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *Store) DeleteRecord(ctx context.Context, tenantID, sheetID, recordID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM payroll_records WHERE tenant_id = $1 AND sheet_id = $2 AND id = $3", tenantID, sheetID, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Store) CreateImportRun(ctx context.Context, tenantID, sheetID, source string) (ImportRun, error) {
	run := ImportRun{SheetID: sheetID, Source: source, Status: ImportProcessing}
	err := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_import_runs (tenant_id, sheet_id, source, status)
    VALUES ($1,$2,$3,$4)
    RETURNING id, started_at
  `, tenantID, sheetID, source, string(run.Status)).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return ImportRun{}, err
	}
	return run, nil
}

func (s *Store) FinishImportRun(ctx context.Context, tenantID string, run ImportRun) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		errorsJSON = []byte("[]")
	}
	_, err = s.DB.Exec(ctx, `
    UPDATE payroll_import_runs
    SET status = $3, accepted = $4, rejected = $5, errors_json = $6, finished_at = now()
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, run.ID, string(run.Status), run.Accepted, run.Rejected, errorsJSON)
	return err
}

func (s *Store) UpdateImportProgress(ctx context.Context, tenantID, runID string, processed, total int) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE payroll_import_runs
    SET processed = $3, total = $4
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID, processed, total)
	return err
}

const importRunColumns = `id, sheet_id, source, status, accepted, rejected, processed, total, errors_json, started_at, finished_at`

func (s *Store) GetImportRun(ctx context.Context, tenantID, runID string) (ImportRun, error) {
	run, err := scanImportRun(s.DB.QueryRow(ctx, `
    SELECT `+importRunColumns+`
    FROM payroll_import_runs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRun{}, ErrImportRunNotFound
	}
	return run, err
}

func (s *Store) ListImportRuns(ctx context.Context, tenantID, sheetID string, limit int) ([]ImportRun, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+importRunColumns+`
    FROM payroll_import_runs
    WHERE tenant_id = $1 AND sheet_id = $2
    ORDER BY started_at DESC
    LIMIT $3
  `, tenantID, sheetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		run, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanImportRun(row pgx.Row) (ImportRun, error) {
	var run ImportRun
	var status string
	var errorsJSON []byte
	if err := row.Scan(&run.ID, &run.SheetID, &run.Source, &status, &run.Accepted, &run.Rejected, &run.Processed, &run.Total, &errorsJSON, &run.StartedAt, &run.FinishedAt); err != nil {
		return ImportRun{}, err
	}
	run.Status = ImportStatus(status)
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
			run.Errors = nil
		}
	}
	return run, nil
}

func (s *Store) scanRecord(row pgx.Row) (Record, error) {
	var record Record
	var status string
	var accountEnc, idEnc []byte
	err := row.Scan(
		&record.ID, &record.SheetID, &record.No, &record.Name, &record.Post, &accountEnc, &record.BankName, &record.Telephone, &idEnc,
		&record.BasicSalary, &record.TransportAllowance, &record.Advance, &record.GrossSalary, &record.PAYE,
		&record.MaternityLeaveEmployee, &record.MaternityLeaveEmployer, &record.RSSBPensionEmployee6, &record.RSSBPensionEmployer6, &record.RSSBPensionEmployee2,
		&record.TotalRSSBContribution, &record.NetPayB4CBHI, &record.Mutuelle, &record.NetBankList, &status, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	record.Status = Status(status)
	if record.Account, err = s.open(accountEnc); err != nil {
		return Record{}, fmt.Errorf("decrypt account: %w", err)
	}
	if record.IDNumber, err = s.open(idEnc); err != nil {
		return Record{}, fmt.Errorf("decrypt id number: %w", err)
	}
	return record, nil
}

func (s *Store) sealBanking(record Record) ([]byte, []byte, error) {
	account, err := s.seal(record.Account)
	if err != nil {
		return nil, nil, err
	}
	idNumber, err := s.seal(record.IDNumber)
	if err != nil {
		return nil, nil, err
	}
	return account, idNumber, nil
}

func (s *Store) seal(value string) ([]byte, error) {
	if s.Crypto == nil {
		return []byte(value), nil
	}
	return s.Crypto.EncryptString(value)
}

func (s *Store) open(value []byte) (string, error) {
	if s.Crypto == nil {
		return string(value), nil
	}
	return s.Crypto.DecryptString(value)
}

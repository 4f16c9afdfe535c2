package payroll

import "context"

type StoreAPI interface {
	CreateSheet(ctx context.Context, tenantID string, sheet Sheet) (Sheet, error)
	ListSheets(ctx context.Context, tenantID string) ([]Sheet, error)
	GetSheet(ctx context.Context, tenantID, sheetID string) (Sheet, error)
	CountRecords(ctx context.Context, tenantID, sheetID string) (int, error)
	ListRecords(ctx context.Context, tenantID, sheetID string) ([]Record, error)
	GetRecord(ctx context.Context, tenantID, sheetID, recordID string) (Record, error)
	InsertRecords(ctx context.Context, tenantID, sheetID string, records []Record) ([]Record, error)
	UpdateRecord(ctx context.Context, tenantID string, record Record) (Record, error)
	DeleteRecord(ctx context.Context, tenantID, sheetID, recordID string) error
	CreateImportRun(ctx context.Context, tenantID, sheetID, source string) (ImportRun, error)
	UpdateImportProgress(ctx context.Context, tenantID, runID string, processed, total int) error
	FinishImportRun(ctx context.Context, tenantID string, run ImportRun) error
	GetImportRun(ctx context.Context, tenantID, runID string) (ImportRun, error)
	ListImportRuns(ctx context.Context, tenantID, sheetID string, limit int) ([]ImportRun, error)
	Ping(ctx context.Context) error
}

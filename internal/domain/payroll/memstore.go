package payroll

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs local runs with
// STORE_DRIVER=memory and the service and handler tests.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	sheets  map[string]Sheet
	owners  map[string]string
	records map[string]Record
	runs    map[string]ImportRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     func() time.Time { return time.Now().UTC() },
		sheets:  map[string]Sheet{},
		owners:  map[string]string{},
		records: map[string]Record{},
		runs:    map[string]ImportRun{},
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateSheet(_ context.Context, tenantID string, sheet Sheet) (Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet.ID = uuid.NewString()
	sheet.CreatedAt = s.now()
	s.sheets[sheet.ID] = sheet
	s.owners[sheet.ID] = tenantID
	return sheet, nil
}

func (s *MemoryStore) ListSheets(_ context.Context, tenantID string) ([]Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Sheet
	for id, sheet := range s.sheets {
		if s.owners[id] == tenantID {
			out = append(out, sheet)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period == out[j].Period {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Period > out[j].Period
	})
	return out, nil
}

func (s *MemoryStore) GetSheet(_ context.Context, tenantID, sheetID string) (Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheetLocked(tenantID, sheetID)
}

func (s *MemoryStore) sheetLocked(tenantID, sheetID string) (Sheet, error) {
	sheet, ok := s.sheets[sheetID]
	if !ok || s.owners[sheetID] != tenantID {
		return Sheet{}, ErrSheetNotFound
	}
	return sheet, nil
}

func (s *MemoryStore) CountRecords(_ context.Context, tenantID, sheetID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordsLocked(tenantID, sheetID)), nil
}

func (s *MemoryStore) ListRecords(_ context.Context, tenantID, sheetID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked(tenantID, sheetID), nil
}

func (s *MemoryStore) recordsLocked(tenantID, sheetID string) []Record {
	if s.owners[sheetID] != tenantID {
		return nil
	}
	var out []Record
	for _, r := range s.records {
		if r.SheetID == sheetID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].No == out[j].No {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].No < out[j].No
	})
	return out
}

func (s *MemoryStore) GetRecord(_ context.Context, tenantID, sheetID, recordID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok || r.SheetID != sheetID || s.owners[sheetID] != tenantID {
		return Record{}, ErrRecordNotFound
	}
	return r, nil
}

func (s *MemoryStore) InsertRecords(_ context.Context, tenantID, sheetID string, records []Record) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.sheetLocked(tenantID, sheetID); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		r.ID = uuid.NewString()
		r.SheetID = sheetID
		r.CreatedAt = s.now()
		r.UpdatedAt = r.CreatedAt
		s.records[r.ID] = r
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, tenantID string, record Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok || existing.SheetID != record.SheetID || s.owners[record.SheetID] != tenantID {
		return Record{}, ErrRecordNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = s.now()
	s.records[record.ID] = record
	return record, nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, tenantID, sheetID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok || r.SheetID != sheetID || s.owners[sheetID] != tenantID {
		return ErrRecordNotFound
	}
	delete(s.records, recordID)
	return nil
}

func (s *MemoryStore) CreateImportRun(_ context.Context, tenantID, sheetID, source string) (ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.sheetLocked(tenantID, sheetID); err != nil {
		return ImportRun{}, err
	}
	run := ImportRun{
		ID:        uuid.NewString(),
		SheetID:   sheetID,
		Source:    source,
		Status:    ImportProcessing,
		StartedAt: s.now(),
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *MemoryStore) UpdateImportProgress(_ context.Context, tenantID, runID string, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || s.owners[run.SheetID] != tenantID {
		return ErrImportRunNotFound
	}
	run.Processed = processed
	run.Total = total
	s.runs[runID] = run
	return nil
}

func (s *MemoryStore) GetImportRun(_ context.Context, tenantID, runID string) (ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || s.owners[run.SheetID] != tenantID {
		return ImportRun{}, ErrImportRunNotFound
	}
	run.Errors = append([]string(nil), run.Errors...)
	return run, nil
}

func (s *MemoryStore) FinishImportRun(_ context.Context, tenantID string, run ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok || s.owners[existing.SheetID] != tenantID {
		return ErrImportRunNotFound
	}
	finished := s.now()
	existing.Status = run.Status
	existing.Accepted = run.Accepted
	existing.Rejected = run.Rejected
	existing.Errors = append([]string(nil), run.Errors...)
	existing.FinishedAt = &finished
	s.runs[run.ID] = existing
	return nil
}

func (s *MemoryStore) ListImportRuns(_ context.Context, tenantID, sheetID string, limit int) ([]ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[sheetID] != tenantID {
		return nil, nil
	}
	var out []ImportRun
	for _, run := range s.runs {
		if run.SheetID == sheetID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

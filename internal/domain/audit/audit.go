package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ActionSheetCreate  = "payroll.sheet.create"
	ActionRecordCreate = "payroll.record.create"
	ActionRecordInputs = "payroll.record.inputs"
	ActionRecordUpdate = "payroll.record.update"
	ActionRecordStatus = "payroll.record.status"
	ActionRecordDelete = "payroll.record.delete"
	ActionSample       = "payroll.sample"
	ActionImport       = "payroll.import"

	EntitySheet  = "payroll_sheet"
	EntityRecord = "payroll_record"
)

// Entry is one change to be written to the audit trail. Before and After are
// marshalled to JSON when non-nil.
type Entry struct {
	TenantID   string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	IP         string
	Before     any
	After      any
}

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorUser  string
}

type Log interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, int, error)
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return payload, nil
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, entry Entry) error {
	beforeJSON, err := marshal(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshal(entry.After)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, entry.TenantID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, []byte(beforeJSON), []byte(afterJSON), entry.RequestID, entry.IP)
	return err
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, int, error) {
	where, args := buildWhere(tenantID, filter)

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM audit_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT id, actor_user_id, action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json FROM audit_events" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var before, after []byte
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt, &before, &after); err != nil {
			return nil, 0, err
		}
		evt.Before = before
		evt.After = after
		out = append(out, evt)
	}
	return out, total, rows.Err()
}

func buildWhere(tenantID string, filter Filter) (string, []any) {
	where := " WHERE tenant_id = $1"
	args := []any{tenantID}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("action", filter.Action)
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)
	add("actor_user_id", filter.ActorUser)
	return where, args
}

// MemoryLog is the in-process audit trail used with the memory store.
type MemoryLog struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{events: map[string][]Event{}}
}

func (m *MemoryLog) Record(_ context.Context, entry Entry) error {
	before, err := marshal(entry.Before)
	if err != nil {
		return err
	}
	after, err := marshal(entry.After)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[entry.TenantID] = append(m.events[entry.TenantID], Event{
		ID:         uuid.NewString(),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		RequestID:  entry.RequestID,
		IP:         entry.IP,
		CreatedAt:  time.Now().UTC(),
		Before:     before,
		After:      after,
	})
	return nil
}

func (m *MemoryLog) List(_ context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Event
	for _, evt := range m.events[tenantID] {
		if filter.Action != "" && evt.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && evt.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && evt.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorUser != "" && evt.ActorID != filter.ActorUser {
			continue
		}
		matched = append(matched, evt)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset >= total {
		return []Event{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

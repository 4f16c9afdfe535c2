package audithandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
	"hrpayroll/internal/transport/http/shared"
)

const exportLimit = 10000

type Handler struct {
	Log   audit.Log
	Perms middleware.PermissionStore
}

func NewHandler(log audit.Log, perms middleware.PermissionStore) *Handler {
	return &Handler{Log: log, Perms: perms}
}

type exportRow struct {
	ID         string `csv:"id"`
	ActorID    string `csv:"actor_user_id"`
	Action     string `csv:"action"`
	EntityType string `csv:"entity_type"`
	EntityID   string `csv:"entity_id"`
	RequestID  string `csv:"request_id"`
	IP         string `csv:"ip"`
	CreatedAt  string `csv:"created_at"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		ActorUser:  q.Get("actorUserId"),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 0, 0)
	events, total, err := h.Log.List(r.Context(), user.TenantID, filterFrom(r), page.Limit, page.Offset)
	if err != nil {
		slog.Error("audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	page.SetTotal(w, total)
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	events, _, err := h.Log.List(r.Context(), user.TenantID, filterFrom(r), exportLimit, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	rows := make([]exportRow, len(events))
	for i, evt := range events {
		rows[i] = exportRow{
			ID:         evt.ID,
			ActorID:    evt.ActorID,
			Action:     evt.Action,
			EntityType: evt.EntityType,
			EntityID:   evt.EntityID,
			RequestID:  evt.RequestID,
			IP:         evt.IP,
			CreatedAt:  evt.CreatedAt.Format(time.RFC3339),
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	if err := gocsv.Marshal(rows, w); err != nil {
		slog.Warn("audit export failed", "err", err)
	}
}

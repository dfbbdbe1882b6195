package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slipgate/internal/audit"
	"slipgate/internal/compliance"
	"slipgate/internal/platform/metrics"
	"slipgate/internal/platform/middleware"
	"slipgate/internal/reminder"
	"slipgate/internal/slip"
	"slipgate/internal/slip/store"
	"slipgate/internal/transport/http/shared"
	pkgerrors "slipgate/pkg/errors"
)

// StatsProvider computes compliance figures for the admin surface.
type StatsProvider interface {
	Stats(ctx context.Context, f store.Filter) (compliance.Stats, error)
	ReminderStats(ctx context.Context, f store.Filter) (compliance.ReminderStats, error)
}

// BatchRunner triggers one reminder pass on demand.
type BatchRunner interface {
	RunOnce(ctx context.Context) (reminder.Result, error)
}

// AuditLog reads the audit trail for a slip.
type AuditLog interface {
	List(ctx context.Context, slipID string) ([]audit.Event, error)
}

// AdminHandler handles the JWT-gated administrative endpoints.
type AdminHandler struct {
	logger       *slog.Logger
	slips        Service
	stats        StatsProvider
	batch        BatchRunner
	audits       AuditLog
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// NewAdmin creates the administrative Handler.
func NewAdmin(
	slips Service,
	stats StatsProvider,
	batch BatchRunner,
	audits AuditLog,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *AdminHandler {
	return &AdminHandler{
		logger:       logger,
		slips:        slips,
		stats:        stats,
		batch:        batch,
		audits:       audits,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the admin routes with the chi router.
func (h *AdminHandler) Register(r chi.Router) {
	admin := chi.NewRouter()
	admin.Use(middleware.Recovery(h.logger))
	admin.Use(middleware.RequestID)
	admin.Use(middleware.Logger(h.logger))
	admin.Use(middleware.Timeout(30 * time.Second))
	admin.Use(middleware.ContentTypeJSON)
	admin.Use(middleware.Latency(h.metrics))
	admin.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	admin.Post("/slips", h.handleCreate)
	admin.Get("/slips", h.handleList)
	admin.Get("/slips/stats", h.handleStats)
	admin.Get("/slips/reminders/stats", h.handleReminderStats)
	admin.Post("/slips/reminders/run", h.handleRunReminders)
	admin.Get("/slips/{id}", h.handleGet)
	admin.Patch("/slips/{id}", h.handleUpdate)
	admin.Delete("/slips/{id}", h.handleDelete)
	admin.Post("/slips/{id}/resend", h.handleResend)
	admin.Post("/slips/{id}/remind", h.handleRemind)
	admin.Get("/slips/{id}/verify", h.handleVerify)
	admin.Get("/slips/{id}/audit", h.handleAudit)

	r.Mount("/admin", admin)
}

type createRequest struct {
	BookingID  string `json:"booking_id"`
	TemplateID string `json:"template_id,omitempty"`
}

func (h *AdminHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BookingID == "" {
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "booking_id is required"))
		return
	}

	created, err := h.slips.CreateForBooking(ctx, req.BookingID, req.TemplateID)
	if err != nil {
		h.logError(ctx, "slip creation failed", err)
		shared.WriteError(w, err)
		return
	}

	now := time.Now()
	out := make([]adminSlipResponse, 0, len(created))
	for _, s := range created {
		out = append(out, toAdminSlipResponse(s, now))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"created": len(out),
		"slips":   out,
	})
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, p, err := parseListQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Admins only see their own organization's slips.
	if org := middleware.GetOrganizationID(ctx); org != "" {
		f.OrganizationID = org
	}

	slips, total, err := h.slips.List(ctx, f, p)
	if err != nil {
		h.logError(ctx, "slip listing failed", err)
		shared.WriteError(w, err)
		return
	}

	now := time.Now()
	out := make([]adminSlipResponse, 0, len(slips))
	for _, s := range slips {
		out = append(out, toAdminSlipResponse(s, now))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"slips":    out,
		"total":    total,
		"page":     p.Number,
		"per_page": p.Size,
	})
}

func (h *AdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	record, err := h.slips.GetByID(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAdminSlipResponse(record, time.Now()))
}

type updateRequest struct {
	GuardianName        *string                  `json:"guardian_name"`
	GuardianEmail       *string                  `json:"guardian_email"`
	GuardianPhone       *string                  `json:"guardian_phone"`
	EmergencyContacts   *[]slip.EmergencyContact `json:"emergency_contacts"`
	Medical             *slip.MedicalInfo        `json:"medical"`
	SpecialInstructions *string                  `json:"special_instructions"`
	PhotoConsent        *bool                    `json:"photo_consent"`
}

func (h *AdminHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.slips.Update(ctx, id, store.Update{
		GuardianName:        req.GuardianName,
		GuardianEmail:       req.GuardianEmail,
		GuardianPhone:       req.GuardianPhone,
		EmergencyContacts:   req.EmergencyContacts,
		Medical:             req.Medical,
		SpecialInstructions: req.SpecialInstructions,
		PhotoConsent:        req.PhotoConsent,
	})
	if err != nil {
		h.logError(ctx, "slip update failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAdminSlipResponse(record, time.Now()))
}

func (h *AdminHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	if err := h.slips.Delete(ctx, id); err != nil {
		h.logError(ctx, "slip deletion failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	if err := h.slips.Resend(ctx, id); err != nil {
		h.logError(ctx, "slip email resend failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleRemind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	sent, err := h.slips.SendReminder(ctx, id)
	if err != nil {
		h.logError(ctx, "manual reminder failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (h *AdminHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	valid, err := h.slips.VerifyIntegrity(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *AdminHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.slipID(w, r)
	if !ok {
		return
	}
	events, err := h.audits.List(ctx, id.String())
	if err != nil {
		h.logError(ctx, "audit listing failed", err)
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeInternal, "failed to list audit events"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, _, err := parseListQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if org := middleware.GetOrganizationID(ctx); org != "" {
		f.OrganizationID = org
	}

	stats, err := h.stats.Stats(ctx, f)
	if err != nil {
		h.logError(ctx, "stats aggregation failed", err)
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeInternal, "failed to compute statistics"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handleReminderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, _, err := parseListQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if org := middleware.GetOrganizationID(ctx); org != "" {
		f.OrganizationID = org
	}

	stats, err := h.stats.ReminderStats(ctx, f)
	if err != nil {
		h.logError(ctx, "reminder stats aggregation failed", err)
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeInternal, "failed to compute reminder statistics"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.batch.RunOnce(ctx)
	if err != nil {
		h.logError(ctx, "on-demand reminder pass failed", err)
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeInternal, "reminder pass failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) slipID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid slip id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

func parseListQuery(r *http.Request) (store.Filter, store.Page, error) {
	q := r.URL.Query()
	f := store.Filter{
		BookingID:      q.Get("booking_id"),
		OrganizationID: q.Get("organization_id"),
		Status:         q.Get("status"),
		Search:         q.Get("search"),
	}
	switch f.Status {
	case "", "signed", "unsigned", "overdue":
	default:
		return f, store.Page{}, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid status filter")
	}

	for param, dst := range map[string]**time.Time{"date_from": &f.DateFrom, "date_to": &f.DateTo} {
		if v := q.Get(param); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return f, store.Page{}, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid "+param)
			}
			*dst = &t
		}
	}

	p := store.Page{Number: 1, Size: 15}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Number = n
		}
	}
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			p.Size = n
		}
	}
	return f, p, nil
}

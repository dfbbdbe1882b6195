// Package handler exposes the slip lifecycle over HTTP: the token-gated
// guardian surface and the JWT-gated administrative surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slipgate/internal/platform/metrics"
	"slipgate/internal/platform/middleware"
	"slipgate/internal/slip"
	"slipgate/internal/slip/service"
	"slipgate/internal/slip/signature"
	"slipgate/internal/slip/store"
	"slipgate/internal/transport/http/shared"
	pkgerrors "slipgate/pkg/errors"
)

// Service defines the slip operations the HTTP layer delegates to.
type Service interface {
	CreateForBooking(ctx context.Context, bookingID, templateID string) ([]*slip.Slip, error)
	GetByID(ctx context.Context, id uuid.UUID) (*slip.Slip, error)
	GetByToken(ctx context.Context, token string) (*slip.Slip, error)
	TokenStatus(ctx context.Context, token string) (string, *slip.Slip, error)
	TemplateContent(ctx context.Context, token string) (string, error)
	Sign(ctx context.Context, token string, req service.SignRequest, origin string) (*slip.Slip, error)
	Update(ctx context.Context, id uuid.UUID, u store.Update) (*slip.Slip, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f store.Filter, p store.Page) ([]*slip.Slip, int, error)
	Resend(ctx context.Context, id uuid.UUID) error
	SendReminder(ctx context.Context, id uuid.UUID) (bool, error)
	VerifyIntegrity(ctx context.Context, id uuid.UUID) (bool, error)
}

// Handler handles the guardian-facing slip endpoints.
type Handler struct {
	logger  *slog.Logger
	slips   Service
	metrics *metrics.Metrics
	extra   []func(http.Handler) http.Handler
}

// New creates the public slip Handler. Extra middleware (rate limiting) runs
// after the standard chain.
func New(slips Service, logger *slog.Logger, m *metrics.Metrics, extra ...func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:  logger,
		slips:   slips,
		metrics: m,
		extra:   extra,
	}
}

// Register registers the guardian-facing routes. No authentication; the
// access token in the path is the credential.
func (h *Handler) Register(r chi.Router) {
	public := chi.NewRouter()
	public.Use(middleware.Recovery(h.logger))
	public.Use(middleware.RequestID)
	public.Use(middleware.Logger(h.logger))
	public.Use(middleware.Timeout(30 * time.Second))
	public.Use(middleware.ContentTypeJSON)
	public.Use(middleware.Latency(h.metrics))
	for _, mw := range h.extra {
		public.Use(mw)
	}
	public.Get("/{token}", h.handleGetSlip)
	public.Get("/{token}/validate", h.handleValidateToken)
	public.Get("/{token}/template", h.handleGetTemplate)
	public.Post("/{token}/sign", h.handleSign)

	r.Mount("/slips", public)
}

func (h *Handler) handleGetSlip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.slips.GetByToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.logWarn(ctx, "slip lookup failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSlipResponse(record, time.Now()))
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, record, err := h.slips.TokenStatus(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.logWarn(ctx, "token validation failed", err)
		shared.WriteError(w, err)
		return
	}
	resp := map[string]any{"status": status}
	if record != nil {
		resp["program_title"] = record.ProgramTitle
		resp["subject_name"] = record.SubjectName
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	content, err := h.slips.TemplateContent(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.logWarn(ctx, "template lookup failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"content": content})
}

// signRequest is the guardian's signing submission.
type signRequest struct {
	GuardianName        string                  `json:"guardian_name"`
	GuardianEmail       string                  `json:"guardian_email"`
	GuardianPhone       string                  `json:"guardian_phone"`
	EmergencyContacts   []slip.EmergencyContact `json:"emergency_contacts"`
	Medical             slip.MedicalInfo        `json:"medical"`
	SpecialInstructions string                  `json:"special_instructions"`
	PhotoConsent        bool                    `json:"photo_consent"`

	Signature          string `json:"signature"`
	SignatureTimestamp string `json:"signature_timestamp"`
	SignatureImage     string `json:"signature_image,omitempty"`
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logWarn(ctx, "invalid sign request body", err)
		shared.WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.slips.Sign(ctx, chi.URLParam(r, "token"), service.SignRequest{
		GuardianName:        req.GuardianName,
		GuardianEmail:       req.GuardianEmail,
		GuardianPhone:       req.GuardianPhone,
		EmergencyContacts:   req.EmergencyContacts,
		Medical:             req.Medical,
		SpecialInstructions: req.SpecialInstructions,
		PhotoConsent:        req.PhotoConsent,
		Signature: signature.Submission{
			Signature:    req.Signature,
			GuardianName: req.GuardianName,
			Timestamp:    req.SignatureTimestamp,
			Image:        req.SignatureImage,
		},
	}, shared.ClientAddr(r))
	if err != nil {
		h.logWarn(ctx, "sign attempt failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSlipResponse(record, time.Now()))
}

func (h *Handler) logWarn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

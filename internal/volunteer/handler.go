// internal/volunteer/handler.go
package volunteer

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/httpx"
	"memberportal/internal/session"
)

type Handler struct {
	service Service
	log     *zap.Logger
}

func NewHandler(service Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/hours", func(r chi.Router) {
		r.Post("/", h.HandleLog)
		r.Get("/", h.HandleList)
		r.Get("/summary", h.HandleSummary)
		r.Post("/{id}/review", h.HandleReview)
	})
	return r
}

type logRequest struct {
	OpportunityID *uuid.UUID `json:"opportunity_id"`
	Hours         float64    `json:"hours"`
	Date          time.Time  `json:"date"`
	Description   string     `json:"description"`
}

func (h *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	e, err := h.service.Log(r.Context(), session.PrincipalFrom(r.Context()), Entry{
		OpportunityID: req.OpportunityID,
		Hours:         req.Hours,
		Date:          req.Date,
		Description:   req.Description,
	})
	if err != nil {
		h.writeError(w, err, "log volunteer hours")
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func memberParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("member")
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid member id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	entries, err := h.service.List(r.Context(), session.PrincipalFrom(r.Context()), Filter{
		MemberID: member,
		Status:   Status(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.writeError(w, err, "view volunteer hours")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	p := session.PrincipalFrom(r.Context())
	if member == uuid.Nil && p != nil {
		member = p.ID
	}
	summary, err := h.service.Summary(r.Context(), p, member)
	if err != nil {
		h.writeError(w, err, "view volunteer hours")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid entry id"})
		return
	}
	var req Review
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	e, err := h.service.Review(r.Context(), session.PrincipalFrom(r.Context()), id, req)
	if err != nil {
		h.writeError(w, err, "review volunteer hours")
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, action string) {
	if reason, ok := access.ReasonOf(err); ok {
		httpx.Denied(w, reason, action)
		return
	}
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, ErrAlreadyReviewed):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "already_reviewed", Message: err.Error()})
	case errors.Is(err, ErrConflict):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, ErrInvalidEntry):
		httpx.Error(w, http.StatusUnprocessableEntity, httpx.ErrorBody{Error: "invalid_entry", Message: err.Error()})
	default:
		h.log.Error("volunteer request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
	}
}

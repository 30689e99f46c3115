// internal/events/handler.go
package events

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
	r.Post("/", h.HandleCreate)
	r.Get("/", h.HandleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/registrations", h.HandleRegister)
		r.Get("/registrations", h.HandleRegistrations)
	})
	return r
}

type createRequest struct {
	Title                    string        `json:"title"`
	Description              string        `json:"description"`
	StartsAt                 time.Time     `json:"starts_at"`
	AllowedTiers             []access.Tier `json:"allowed_tiers"`
	RequiresActiveMembership *bool         `json:"requires_active_membership"`
	RegistrationOpens        time.Time     `json:"registration_opens"`
	RegistrationCloses       time.Time     `json:"registration_closes"`
	Capacity                 int           `json:"capacity"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	e := Event{
		Title:                    req.Title,
		Description:              req.Description,
		StartsAt:                 req.StartsAt,
		AllowedTiers:             req.AllowedTiers,
		RequiresActiveMembership: req.RequiresActiveMembership == nil || *req.RequiresActiveMembership,
		RegistrationOpens:        req.RegistrationOpens,
		RegistrationCloses:       req.RegistrationCloses,
		Capacity:                 req.Capacity,
	}
	created, err := h.service.Create(r.Context(), session.PrincipalFrom(r.Context()), e)
	if err != nil {
		h.writeError(w, err, "create events")
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), session.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, err, "browse events")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func eventID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid event id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), session.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err, "browse events")
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Register(r.Context(), session.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err, "register for events")
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	regs, err := h.service.Registrations(r.Context(), session.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err, "view attendees")
		return
	}
	if regs == nil {
		regs = []Registration{}
	}
	httpx.JSON(w, http.StatusOK, regs)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, action string) {
	if reason, ok := access.ReasonOf(err); ok {
		httpx.Denied(w, reason, action)
		return
	}
	switch {
	case errors.Is(err, ErrEventNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, ErrAlreadyRegistered):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "already_registered", Message: err.Error()})
	case errors.Is(err, ErrConflict):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, ErrInvalidEvent):
		httpx.Error(w, http.StatusUnprocessableEntity, httpx.ErrorBody{Error: "invalid_event", Message: err.Error()})
	default:
		h.log.Error("event request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
	}
}

// internal/review/handler.go
package review

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/application"
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

// Routes mounts the application endpoints under the caller's prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleCreate)
	r.Get("/", h.HandleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Get("/timeline", h.HandleTimeline)
		r.Post("/submit", h.versionedCall(h.service.Submit))
		r.Post("/withdraw", h.versionedCall(h.service.Withdraw))
		r.Post("/start-review", h.versionedCall(h.service.StartReview))
		r.Post("/resume-review", h.versionedCall(h.service.ResumeReview))
		r.Post("/documents", h.HandleUpload)
		r.Post("/documents/{ref}/verify", h.HandleVerifyDocument)
		r.Post("/references/{index}/verify", h.HandleVerifyReference)
		r.Post("/document-requests", h.HandleRequestDocuments)
		r.Post("/interview", h.HandleScheduleInterview)
		r.Post("/decision", h.HandleDecision)
	})
	return r
}

type versionRequest struct {
	Version int `json:"version"`
}

func applicationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid application id"})
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.Decode(r, v); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: err.Error()})
		return false
	}
	return true
}

type versionedOp func(r *http.Request, id uuid.UUID, version int) (application.Application, error)

func (h *Handler) versionedCall(op func(ctx context.Context, p *access.Principal, id uuid.UUID, version int) (application.Application, error)) http.HandlerFunc {
	return h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return op(r.Context(), session.PrincipalFrom(r.Context()), id, version)
	}, nil)
}

// versioned is implemented by every request body that carries the observed version.
type versioned interface {
	observedVersion() int
}

func (r *versionRequest) observedVersion() int { return r.Version }

// run decodes body (a *versionRequest when nil), invokes op and writes the result.
func (h *Handler) run(op versionedOp, body versioned) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := applicationID(w, r)
		if !ok {
			return
		}
		target := body
		if target == nil {
			target = &versionRequest{}
		}
		if r.ContentLength != 0 && !decode(w, r, target) {
			return
		}
		app, err := op(r, id, target.observedVersion())
		if err != nil {
			h.writeError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, app)
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var details application.Details
	if !decode(w, r, &details) {
		return
	}
	app, err := h.service.CreateDraft(r.Context(), session.PrincipalFrom(r.Context()), details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, app)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var f application.Filter
	if s := r.URL.Query().Get("status"); s != "" {
		f.Status = application.Status(s)
		if !f.Status.IsValid() {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "unknown status"})
			return
		}
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid owner id"})
			return
		}
		f.OwnerID = id
	}

	apps, err := h.service.List(r.Context(), session.PrincipalFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if apps == nil {
		apps = []application.Application{}
	}
	httpx.JSON(w, http.StatusOK, apps)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(r.Context(), session.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, app)
}

func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}
	changes, err := h.service.Timeline(r.Context(), session.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, changes)
}

type updateRequest struct {
	Version int `json:"version"`
	application.Details
}

func (r *updateRequest) observedVersion() int { return r.Version }

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.UpdateDetails(r.Context(), session.PrincipalFrom(r.Context()), id, version, req.Details)
	}, &req)(w, r)
}

type uploadRequest struct {
	Version int `json:"version"`
	Upload
}

func (r *uploadRequest) observedVersion() int { return r.Version }

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.UploadDocument(r.Context(), session.PrincipalFrom(r.Context()), id, version, req.Upload)
	}, &req)(w, r)
}

func (h *Handler) HandleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.VerifyDocument(r.Context(), session.PrincipalFrom(r.Context()), id, version, ref)
	}, nil)(w, r)
}

func (h *Handler) HandleVerifyReference(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Error: "bad_request", Message: "invalid reference index"})
		return
	}
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.VerifyReference(r.Context(), session.PrincipalFrom(r.Context()), id, version, index)
	}, nil)(w, r)
}

type documentsRequest struct {
	Version      int      `json:"version"`
	Descriptions []string `json:"descriptions"`
}

func (r *documentsRequest) observedVersion() int { return r.Version }

func (h *Handler) HandleRequestDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.RequestDocuments(r.Context(), session.PrincipalFrom(r.Context()), id, version, req.Descriptions)
	}, &req)(w, r)
}

type interviewRequest struct {
	Version      int       `json:"version"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Notes        string    `json:"notes"`
}

func (r *interviewRequest) observedVersion() int { return r.Version }

func (h *Handler) HandleScheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req interviewRequest
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.ScheduleInterview(r.Context(), session.PrincipalFrom(r.Context()), id, version, req.ScheduledFor, req.Notes)
	}, &req)(w, r)
}

type decisionRequest struct {
	Version int `json:"version"`
	Verdict
}

func (r *decisionRequest) observedVersion() int { return r.Version }

func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	h.run(func(r *http.Request, id uuid.UUID, version int) (application.Application, error) {
		return h.service.SubmitDecision(r.Context(), session.PrincipalFrom(r.Context()), id, version, req.Verdict)
	}, &req)(w, r)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if reason, ok := access.ReasonOf(err); ok {
		httpx.Denied(w, reason, "")
		return
	}

	var incomplete *application.IncompleteApplicationError
	switch {
	case errors.As(err, &incomplete):
		httpx.Error(w, http.StatusUnprocessableEntity, httpx.ErrorBody{Error: "incomplete_application", Message: err.Error(), MissingFields: incomplete.MissingFields})
	case errors.Is(err, application.ErrInvalidPayload):
		httpx.Error(w, http.StatusUnprocessableEntity, httpx.ErrorBody{Error: "invalid_payload", Message: err.Error()})
	case errors.Is(err, application.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, application.ErrUnauthorizedActor):
		httpx.Error(w, http.StatusForbidden, httpx.ErrorBody{Error: "unauthorized_actor", Message: err.Error()})
	case errors.Is(err, application.ErrConcurrentModification):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "concurrent_modification", Message: err.Error()})
	case errors.Is(err, application.ErrApplicationFinalized):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "application_finalized", Message: err.Error()})
	case errors.Is(err, application.ErrInvalidTransition):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, application.ErrAlreadyExists):
		httpx.Error(w, http.StatusConflict, httpx.ErrorBody{Error: "already_exists", Message: err.Error()})
	case errors.Is(err, ErrDocumentStorage), errors.Is(err, application.ErrPersistence):
		h.log.Error("collaborator failure", zap.Error(err))
		httpx.Error(w, http.StatusBadGateway, httpx.ErrorBody{Error: "upstream_failure", Message: "a backing service failed; retry with a fresh read"})
	default:
		h.log.Error("unexpected error", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
	}
}

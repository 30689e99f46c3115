// internal/navigation/handler.go
package navigation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"memberportal/internal/httpx"
	"memberportal/internal/session"
)

type Handler struct {
	resolver *Resolver
	log      *zap.Logger
}

func NewHandler(resolver *Resolver, log *zap.Logger) *Handler {
	return &Handler{resolver: resolver, log: log}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleMenu)
	r.Get("/{capability}", h.HandleResolve)
	return r
}

// HandleMenu lists the capabilities the caller can open.
func (h *Handler) HandleMenu(w http.ResponseWriter, r *http.Request) {
	caps := h.resolver.Visible(session.PrincipalFrom(r.Context()))
	if caps == nil {
		caps = []Capability{}
	}
	httpx.JSON(w, http.StatusOK, caps)
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Capability: CapabilityID(chi.URLParam(r, "capability")),
		ResourceID: r.URL.Query().Get("resource"),
		Path:       r.URL.Query().Get("path"),
	}
	res, err := h.resolver.Resolve(r.Context(), session.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.log.Error("resolve capability", zap.String("capability", string(req.Capability)), zap.Error(err))
		httpx.Error(w, http.StatusBadGateway, httpx.ErrorBody{Error: "upstream_failure", Message: "could not load resource"})
		return
	}

	status := http.StatusOK
	switch res.Kind {
	case KindRedirect:
		status = http.StatusUnauthorized
	case KindUnauthorized:
		status = http.StatusForbidden
	case KindNotFound:
		status = http.StatusNotFound
	}
	httpx.JSON(w, status, res)
}

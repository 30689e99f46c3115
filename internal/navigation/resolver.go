// internal/navigation/resolver.go
package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"memberportal/internal/access"
)

// ErrResourceNotFound is returned by a ResourceSource for an unknown id.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceSource loads the evaluation inputs contributed by one kind of resource.
type ResourceSource interface {
	Resource(ctx context.Context, id string) (Resource, error)
}

// ResourceSourceFunc adapts a function to ResourceSource.
type ResourceSourceFunc func(ctx context.Context, id string) (Resource, error)

func (f ResourceSourceFunc) Resource(ctx context.Context, id string) (Resource, error) {
	return f(ctx, id)
}

// Resolver maps capabilities to access decisions.
type Resolver struct {
	registry  *Registry
	evaluator *access.Evaluator
	sources   map[ResourceKind]ResourceSource
	loginPath string
	log       *zap.Logger
	denials   metric.Int64Counter
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSource registers the loader for a resource kind.
func WithSource(kind ResourceKind, src ResourceSource) ResolverOption {
	return func(r *Resolver) { r.sources[kind] = src }
}

// WithLoginPath sets where unauthenticated principals are sent.
func WithLoginPath(path string) ResolverOption {
	return func(r *Resolver) { r.loginPath = path }
}

func NewResolver(registry *Registry, evaluator *access.Evaluator, log *zap.Logger, opts ...ResolverOption) *Resolver {
	denials, err := otel.Meter("memberportal/navigation").Int64Counter(
		"portal.access.denials",
		metric.WithDescription("Access policy denials by reason"),
	)
	if err != nil {
		denials = noop.Int64Counter{}
	}

	r := &Resolver{
		registry:  registry,
		evaluator: evaluator,
		sources:   make(map[ResourceKind]ResourceSource),
		loginPath: "/login",
		log:       log,
		denials:   denials,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides whether p may use the requested capability. Denials are results,
// not errors; an error means a resource could not be loaded.
func (r *Resolver) Resolve(ctx context.Context, p *access.Principal, req Request) (Result, error) {
	c, ok := r.registry.Lookup(req.Capability)
	if !ok {
		return Result{Kind: KindNotFound, Message: fmt.Sprintf("unknown capability %q", req.Capability)}, nil
	}

	path := req.Path
	if path == "" {
		path = c.PathFor(req.ResourceID)
	}
	if p == nil {
		return r.deny(ctx, c, access.ReasonUnauthenticated, path), nil
	}

	policy := c.Policy
	var rc *access.ResourceContext
	if c.Resource != ResourceNone && req.ResourceID != "" {
		src, ok := r.sources[c.Resource]
		if !ok {
			return Result{}, fmt.Errorf("no source for %s resources", c.Resource)
		}
		res, err := src.Resource(ctx, req.ResourceID)
		if errors.Is(err, ErrResourceNotFound) {
			return Result{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", c.Resource, req.ResourceID)}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("load %s %s: %w", c.Resource, req.ResourceID, err)
		}
		rc = &access.ResourceContext{OwnerID: res.OwnerID, Capacity: res.Capacity}
		if res.Window != nil {
			policy.Window = res.Window
		}
		if len(res.AllowedTiers) > 0 {
			policy.AllowedTiers = res.AllowedTiers
		}
		if res.RequiresActiveMembership != nil {
			policy.RequiresActiveMembership = *res.RequiresActiveMembership
		}
	}

	c.Policy = policy
	d := r.evaluator.Evaluate(p, policy, rc)
	if !d.Allowed {
		return r.deny(ctx, c, d.Reason, path), nil
	}
	return Result{Kind: KindProceed, Capability: &c}, nil
}

func (r *Resolver) deny(ctx context.Context, c Capability, reason access.Reason, path string) Result {
	r.denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(reason)),
		attribute.String("capability", string(c.ID)),
	))
	r.log.Debug("capability denied",
		zap.String("capability", string(c.ID)),
		zap.String("reason", string(reason)),
	)
	if reason == access.ReasonUnauthenticated {
		return Result{
			Kind:       KindRedirect,
			Reason:     reason,
			RedirectTo: r.loginPath + "?redirect=" + url.QueryEscape(path),
		}
	}
	return Result{
		Kind:    KindUnauthorized,
		Reason:  reason,
		Message: access.Message(reason, c.Action, c.Policy),
	}
}

// Visible lists the capabilities p may open without naming a resource, for menus.
func (r *Resolver) Visible(p *access.Principal) []Capability {
	var out []Capability
	for _, c := range r.registry.All() {
		if c.Resource != ResourceNone {
			continue
		}
		if r.evaluator.Evaluate(p, c.Policy, nil).Allowed {
			out = append(out, c)
		}
	}
	return out
}

package billing

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/courseforge/courseforge/pkg/billing"
	"github.com/courseforge/courseforge/pkg/httpserver"
	"github.com/courseforge/courseforge/pkg/requestid"
)

// Module bundles the billing HTTP surface: the processor webhook
// endpoint, plan change and claim operations, and the entitlement read
// API.
type Module struct {
	reconciler   *billing.WebhookReconciler
	planChanges  *billing.PlanChangeEngine
	claims       *billing.ClaimResolver
	entitlements *billing.EntitlementResolver
	log          *slog.Logger
	healthProbes []func(context.Context) error
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithLogger sets the module's logger.
func WithLogger(log *slog.Logger) ModuleOption {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// WithHealthProbes registers readiness probes for GET /health/ready.
func WithHealthProbes(probes ...func(context.Context) error) ModuleOption {
	return func(m *Module) {
		m.healthProbes = append(m.healthProbes, probes...)
	}
}

// NewModule creates the billing HTTP module. Panics on nil required
// dependencies to fail fast during initialization.
func NewModule(
	reconciler *billing.WebhookReconciler,
	planChanges *billing.PlanChangeEngine,
	claims *billing.ClaimResolver,
	entitlements *billing.EntitlementResolver,
	opts ...ModuleOption,
) *Module {
	if reconciler == nil {
		panic("billing module: WebhookReconciler is required")
	}
	if planChanges == nil {
		panic("billing module: PlanChangeEngine is required")
	}
	if claims == nil {
		panic("billing module: ClaimResolver is required")
	}
	if entitlements == nil {
		panic("billing module: EntitlementResolver is required")
	}

	m := &Module{
		reconciler:   reconciler,
		planChanges:  planChanges,
		claims:       claims,
		entitlements: entitlements,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router mounts the module's routes.
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	r.Post("/webhooks/processor", m.handleWebhook)
	r.Post("/plan-change", m.handlePlanChange)
	r.Post("/claim", m.handleClaim)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/entitlements/{creatorID}", m.handleEntitlementCheck)
		r.Get("/subscriptions", m.handleListSubscriptions)
	})

	r.Get("/health", httpserver.HealthCheckHandler(context.Background(), m.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(context.Background(), m.log, m.healthProbes...))

	return r
}

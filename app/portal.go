// Package app wires the portal together: it registers command handlers on
// the command bus, attaches projections to the event store, and exposes
// queriers over the read model. Every command returns the projected view of
// the affected aggregate, so callers read their own writes.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/eventstore"
	"github.com/tessera-id/portal/readmodel"
)

// Portal is the application service for the identity portal.
type Portal struct {
	store  *eventstore.Store
	stores readmodel.Stores
	bus    *cqrs.CommandBus
	logger eventstore.Logger
	newID  func() string
	clock  func() time.Time
}

// Option configures a Portal.
type Option func(*Portal)

// WithLogger sets the logger used by the command pipeline.
func WithLogger(logger eventstore.Logger) Option {
	return func(p *Portal) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIDGenerator overrides aggregate ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(p *Portal) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(p *Portal) {
		if fn != nil {
			p.clock = fn
		}
	}
}

// WithMetrics attaches Prometheus metrics to the command pipeline and the
// projection bus.
func WithMetrics(m *cqrs.Metrics) Option {
	return func(p *Portal) {
		p.bus.Use(m.CommandMiddleware())
		p.store.Bus().Observe(m)
	}
}

// WithTracing attaches OpenTelemetry spans to command execution.
func WithTracing(tp trace.TracerProvider) Option {
	return func(p *Portal) {
		p.bus.Use(cqrs.TracingMiddleware(tp))
	}
}

// WithIdempotency deduplicates commands carrying idempotency keys.
func WithIdempotency(store cqrs.IdempotencyStore) Option {
	return func(p *Portal) {
		p.bus.Use(cqrs.IdempotencyMiddleware(cqrs.IdempotencyConfig{Store: store}))
	}
}

// New creates a Portal over an event store and a set of view stores. The
// projector is registered on the store's bus, so every saved event updates
// the views before the save returns.
func New(store *eventstore.Store, stores readmodel.Stores, opts ...Option) *Portal {
	store.RegisterEvents(domain.AllEvents()...)
	readmodel.NewProjector(stores).Register(store.Bus())

	p := &Portal{
		store:  store,
		stores: stores,
		bus:    cqrs.NewCommandBus(),
		logger: eventstore.NopLogger(),
		newID:  uuid.NewString,
		clock:  time.Now,
	}

	p.bus.Use(
		cqrs.RecoveryMiddleware(),
		cqrs.ActorMiddleware(),
		cqrs.CorrelationIDMiddleware(uuid.NewString),
	)

	for _, opt := range opts {
		opt(p)
	}

	// Logging and validation run innermost so they see the final context.
	p.bus.Use(
		cqrs.LoggingMiddleware(p.logger),
		cqrs.ValidationMiddleware(),
	)

	p.registerConfigurationHandlers()
	p.registerRealmHandlers()
	p.registerUserHandlers()
	p.registerSessionHandlers()
	p.registerApiKeyHandlers()
	p.registerRoleHandlers()
	p.registerSenderHandlers()
	p.registerTemplateHandlers()
	p.registerDictionaryHandlers()

	return p
}

// Dispatch sends a command through the pipeline.
func (p *Portal) Dispatch(ctx context.Context, cmd cqrs.Command) (cqrs.CommandResult, error) {
	return p.bus.Dispatch(ctx, cmd)
}

// Bus exposes the command bus for additional middleware or handlers.
func (p *Portal) Bus() *cqrs.CommandBus { return p.bus }

// Stores exposes the view stores for read-only access.
func (p *Portal) Stores() readmodel.Stores { return p.stores }

// save appends an aggregate's uncommitted events, stamping the dispatching
// actor into the event metadata.
func (p *Portal) save(ctx context.Context, agg eventstore.Aggregate) error {
	actor := cqrs.ActorFromContext(ctx)
	return p.store.SaveAggregate(ctx, agg, eventstore.WithAppendMetadata(eventstore.Metadata{
		ActorID:       actor.ID,
		TenantID:      cqrs.TenantIDFromContext(ctx),
		CorrelationID: cqrs.CorrelationIDFromContext(ctx),
	}))
}

// load hydrates an aggregate, translating a missing stream into a domain
// not-found error.
func (p *Portal) load(ctx context.Context, agg eventstore.Aggregate) error {
	if err := p.store.LoadAggregate(ctx, agg); err != nil {
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return domain.NewNotFoundError(agg.AggregateType(), agg.AggregateID())
		}
		return err
	}
	return nil
}

// tenantOf normalizes an optional tenant reference: empty means the
// top-level portal scope.
func tenantOf(tenantID string) *string {
	if tenantID == "" {
		return nil
	}
	return &tenantID
}

// viewNotFound separates a true miss from a store failure.
func viewNotFound(err error) bool {
	return errors.Is(err, readmodel.ErrNotFound)
}

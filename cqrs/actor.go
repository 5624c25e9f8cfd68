package cqrs

import "context"

// ActorKind classifies who issued a command.
type ActorKind string

const (
	ActorKindUser   ActorKind = "User"
	ActorKindApiKey ActorKind = "ApiKey"
	ActorKindSystem ActorKind = "System"
)

// Actor identifies the principal a command runs as. Every event appended by
// a command handler is attributed to the dispatching actor.
type Actor struct {
	ID   string
	Kind ActorKind
}

// SystemActor is the fallback principal for unattended operations.
var SystemActor = Actor{ID: "system", Kind: ActorKindSystem}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor in the context, falling back to
// SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey{}).(Actor); ok && actor.ID != "" {
		return actor
	}
	return SystemActor
}

// ActorMiddleware ensures every command runs with an actor in context.
func ActorMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if _, ok := ctx.Value(actorKey{}).(Actor); !ok {
				ctx = WithActor(ctx, SystemActor)
			}
			return next(ctx, cmd)
		}
	}
}

type tenantKey struct{}

// WithTenantID returns a context scoped to a tenant realm.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantIDFromContext returns the tenant ID in the context, or empty for the
// top-level portal scope.
func TenantIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(tenantKey{}).(string); ok {
		return id
	}
	return ""
}

// TenantMiddleware scopes commands to a tenant extracted from the command.
// When required, commands without a tenant are rejected.
func TenantMiddleware(extractor func(Command) string, required bool) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if TenantIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}
			var tenantID string
			if extractor != nil {
				tenantID = extractor(cmd)
			}
			if tenantID == "" && required {
				err := NewCommandValidationError(cmd.CommandType(), "tenantId", "tenant ID is required")
				return NewErrorResult(err), err
			}
			if tenantID != "" {
				ctx = WithTenantID(ctx, tenantID)
			}
			return next(ctx, cmd)
		}
	}
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying a correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation ID in the context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// CorrelationIDMiddleware ensures every command runs with a correlation ID,
// generating one when absent.
func CorrelationIDMiddleware(generator func() string) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if CorrelationIDFromContext(ctx) == "" {
				ctx = WithCorrelationID(ctx, generator())
			}
			return next(ctx, cmd)
		}
	}
}

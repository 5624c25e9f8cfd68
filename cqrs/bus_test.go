package cqrs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-id/portal/eventstore"
)

type registerAccount struct {
	Name     string `json:"name" validate:"required"`
	Password Secret `json:"password"`
}

func (registerAccount) CommandType() string { return "RegisterAccount" }

func (c registerAccount) Validate() error {
	if strings.ContainsAny(c.Name, " \t") {
		return NewCommandValidationError("RegisterAccount", "name", "must not contain whitespace")
	}
	return nil
}

func okHandler(t *testing.T) CommandHandler {
	t.Helper()
	return NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
		return NewResult("account-1", 1), nil
	})
}

func TestCommandBus(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to the registered handler", func(t *testing.T) {
		bus := NewCommandBus()
		bus.Register(okHandler(t))

		result, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "account-1", result.AggregateID)
		assert.Equal(t, int64(1), result.Version)
	})

	t.Run("unknown command type fails", func(t *testing.T) {
		bus := NewCommandBus()

		_, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		assert.ErrorIs(t, err, ErrHandlerNotFound)
	})

	t.Run("nil command fails", func(t *testing.T) {
		bus := NewCommandBus()

		_, err := bus.Dispatch(ctx, nil)
		assert.ErrorIs(t, err, ErrNilCommand)
	})

	t.Run("closed bus rejects dispatch", func(t *testing.T) {
		bus := NewCommandBus()
		bus.Register(okHandler(t))
		require.NoError(t, bus.Close())

		_, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		assert.ErrorIs(t, err, ErrBusClosed)
	})

	t.Run("middleware runs in registration order", func(t *testing.T) {
		var order []string
		tag := func(name string) Middleware {
			return func(next MiddlewareFunc) MiddlewareFunc {
				return func(ctx context.Context, cmd Command) (CommandResult, error) {
					order = append(order, name)
					return next(ctx, cmd)
				}
			}
		}

		bus := NewCommandBus(WithMiddleware(tag("first")))
		bus.Use(tag("second"))
		bus.Register(okHandler(t))

		_, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, order)
	})
}

func TestValidationMiddleware(t *testing.T) {
	ctx := context.Background()

	newBus := func(t *testing.T) *CommandBus {
		t.Helper()
		bus := NewCommandBus(WithMiddleware(ValidationMiddleware()))
		bus.Register(okHandler(t))
		return bus
	}

	t.Run("struct tag violation rejects the command", func(t *testing.T) {
		bus := newBus(t)

		_, err := bus.Dispatch(ctx, registerAccount{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidationFailed)

		var verr *CommandValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Name", verr.Field)
	})

	t.Run("semantic validation rejects the command", func(t *testing.T) {
		bus := newBus(t)

		_, err := bus.Dispatch(ctx, registerAccount{Name: "has space"})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("valid command passes through", func(t *testing.T) {
		bus := newBus(t)

		result, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("panic becomes an error with masked command data", func(t *testing.T) {
		bus := NewCommandBus(WithMiddleware(RecoveryMiddleware()))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			panic("boom")
		}))

		_, err := bus.Dispatch(ctx, registerAccount{Name: "alice", Password: Secret("hunter2secret")})
		require.Error(t, err)

		var panicErr *PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "RegisterAccount", panicErr.CommandType)
		assert.Contains(t, panicErr.CommandData, "alice")
		assert.NotContains(t, panicErr.CommandData, "hunter2secret")
		assert.Contains(t, panicErr.CommandData, "********")
	})
}

func TestSecret(t *testing.T) {
	t.Run("formatting shows only the mask", func(t *testing.T) {
		s := Secret("topsecret")
		assert.Equal(t, "********", s.String())
		assert.Equal(t, "topsecret", s.Raw())
	})

	t.Run("json round trip masks on write", func(t *testing.T) {
		data, err := json.Marshal(Secret("topsecret"))
		require.NoError(t, err)
		assert.JSONEq(t, `"********"`, string(data))

		var s Secret
		require.NoError(t, json.Unmarshal([]byte(`"incoming"`), &s))
		assert.Equal(t, "incoming", s.Raw())
	})
}

func TestIdempotencyMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("second identical command returns the remembered outcome", func(t *testing.T) {
		var calls int
		bus := NewCommandBus(WithMiddleware(IdempotencyMiddleware(IdempotencyConfig{
			Store: NewMemoryIdempotencyStore(),
		})))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			calls++
			return NewResult("account-1", 1), nil
		}))

		cmd := registerAccount{Name: "alice"}
		first, err := bus.Dispatch(ctx, cmd)
		require.NoError(t, err)
		second, err := bus.Dispatch(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, 1, calls)
		assert.Equal(t, first.AggregateID, second.AggregateID)
		assert.Equal(t, first.Version, second.Version)
	})

	t.Run("failed commands may be retried", func(t *testing.T) {
		var calls int
		bus := NewCommandBus(WithMiddleware(IdempotencyMiddleware(IdempotencyConfig{
			Store: NewMemoryIdempotencyStore(),
		})))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			calls++
			if calls == 1 {
				return NewErrorResult(errors.New("transient")), errors.New("transient")
			}
			return NewResult("account-1", 1), nil
		}))

		cmd := registerAccount{Name: "alice"}
		_, err := bus.Dispatch(ctx, cmd)
		require.Error(t, err)
		result, err := bus.Dispatch(ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, result.IsSuccess())
	})

	t.Run("expired records do not short-circuit", func(t *testing.T) {
		store := NewMemoryIdempotencyStore()
		require.NoError(t, store.Store(ctx, &IdempotencyRecord{
			Key:         IdempotencyKeyFor(registerAccount{Name: "alice"}),
			CommandType: "RegisterAccount",
			AggregateID: "stale",
			ProcessedAt: time.Now().Add(-2 * time.Hour),
			ExpiresAt:   time.Now().Add(-time.Hour),
		}))

		var calls int
		bus := NewCommandBus(WithMiddleware(IdempotencyMiddleware(IdempotencyConfig{Store: store})))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			calls++
			return NewResult("account-1", 1), nil
		}))

		result, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "account-1", result.AggregateID)
	})
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()

	t.Run("missing actor falls back to system", func(t *testing.T) {
		assert.Equal(t, SystemActor, ActorFromContext(ctx))
	})

	t.Run("actor middleware seeds the context", func(t *testing.T) {
		var seen Actor
		bus := NewCommandBus(WithMiddleware(ActorMiddleware()))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			seen = ActorFromContext(ctx)
			return NewResult("account-1", 1), nil
		}))

		_, err := bus.Dispatch(ctx, registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, SystemActor, seen)
	})

	t.Run("explicit actor is preserved", func(t *testing.T) {
		actor := Actor{ID: "user-1", Kind: ActorKindUser}
		var seen Actor
		bus := NewCommandBus(WithMiddleware(ActorMiddleware()))
		bus.Register(NewTypedHandler(func(ctx context.Context, cmd registerAccount) (CommandResult, error) {
			seen = ActorFromContext(ctx)
			return NewResult("account-1", 1), nil
		}))

		_, err := bus.Dispatch(WithActor(ctx, actor), registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, actor, seen)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	t.Run("does not alter the result", func(t *testing.T) {
		bus := NewCommandBus(WithMiddleware(LoggingMiddleware(eventstore.NopLogger())))
		bus.Register(okHandler(t))

		result, err := bus.Dispatch(context.Background(), registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "account-1", result.AggregateID)
	})
}

func TestMetrics(t *testing.T) {
	t.Run("middleware passes results through", func(t *testing.T) {
		m := NewMetrics(WithNamespace("test"))
		assert.Len(t, m.Collectors(), 4)

		bus := NewCommandBus(WithMiddleware(m.CommandMiddleware()))
		bus.Register(okHandler(t))

		result, err := bus.Dispatch(context.Background(), registerAccount{Name: "alice"})
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
	})
}

package cqrs

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tessera-id/portal/eventstore"
)

// structValidator checks `validate` struct tags on commands.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidationMiddleware rejects invalid commands before they reach the
// handler. Struct tags are checked first, then the command's own Validate.
func ValidationMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if err := structValidator.StructCtx(ctx, cmd); err != nil {
				var invalid *validator.InvalidValidationError
				if errors.As(err, &invalid) {
					return NewErrorResult(err), err
				}
				var fieldErrs validator.ValidationErrors
				if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
					first := fieldErrs[0]
					verr := &CommandValidationError{
						CommandType: cmd.CommandType(),
						Field:       first.Field(),
						Message:     "failed rule " + first.Tag(),
						Cause:       err,
					}
					return NewErrorResult(verr), verr
				}
				return NewErrorResult(err), err
			}
			if err := cmd.Validate(); err != nil {
				return NewErrorResult(err), err
			}
			return next(ctx, cmd)
		}
	}
}

// RecoveryMiddleware converts handler panics into errors. The captured
// command JSON goes through the Secret type's masking, so credentials never
// reach the error.
func RecoveryMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (result CommandResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					var commandData string
					if data, jsonErr := json.Marshal(cmd); jsonErr == nil {
						commandData = string(data)
					}
					panicErr := NewPanicError(cmd.CommandType(), r, string(debug.Stack()), commandData)
					result = NewErrorResult(panicErr)
					err = panicErr
				}
			}()
			return next(ctx, cmd)
		}
	}
}

// LoggingMiddleware logs command execution. Only command type, actor,
// duration and outcome are logged, never payload fields.
func LoggingMiddleware(logger eventstore.Logger) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			start := time.Now()
			actor := ActorFromContext(ctx)

			logger.Debug("dispatching command",
				"type", cmd.CommandType(),
				"actor", actor.ID,
			)

			result, err := next(ctx, cmd)
			duration := time.Since(start)

			switch {
			case err != nil:
				logger.Error("command failed",
					"type", cmd.CommandType(),
					"actor", actor.ID,
					"duration", duration,
					"error", err,
				)
			case result.IsError():
				logger.Warn("command rejected",
					"type", cmd.CommandType(),
					"actor", actor.ID,
					"duration", duration,
					"error", result.Error,
				)
			default:
				logger.Info("command completed",
					"type", cmd.CommandType(),
					"actor", actor.ID,
					"duration", duration,
					"aggregateId", result.AggregateID,
					"version", result.Version,
				)
			}
			return result, err
		}
	}
}

// TimeoutMiddleware bounds command execution time.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, cmd)
		}
	}
}

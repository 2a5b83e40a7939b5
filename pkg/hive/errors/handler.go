package errors

import (
	"context"
	"log/slog"
)

// Handler coordinates retry and corrective-reprompt error handling for a
// single node execution: transient errors are retried locally (bounded,
// exponential backoff); a schema/length violation gets exactly one
// corrective reprompt that tells the model how to fix it; everything
// else propagates immediately.
type Handler struct {
	retry       RetryConfig
	logger      *slog.Logger
	onReprompt  func(err error)
	onExhausted func(err error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// NewHandler creates a new error handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		retry:  NodeRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) HandlerOption {
	return func(h *Handler) {
		h.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithOnReprompt sets a callback invoked each time a corrective reprompt
// is issued for a schema/length violation.
func WithOnReprompt(fn func(err error)) HandlerOption {
	return func(h *Handler) {
		h.onReprompt = fn
	}
}

// WithOnExhausted sets a callback for when retries and the corrective
// reprompt are both exhausted.
func WithOnExhausted(fn func(err error)) HandlerOption {
	return func(h *Handler) {
		h.onExhausted = fn
	}
}

// ExecuteResult contains the result of a handled execution.
type ExecuteResult[T any] struct {
	Value T
	Err   error

	// Attempts is the total number of attempts made, including the
	// corrective reprompt attempt if one was issued.
	Attempts int

	// Reprompted is true if a corrective reprompt was issued.
	Reprompted bool
}

// Execute runs fn with retry handling for transient errors. If fn fails
// with an escalatable (schema/length) error, repromptFn is called exactly
// once with the original error to build a corrective follow-up call; its
// result is NOT itself retried or re-reprompted.
func Execute[T any](
	ctx context.Context,
	h *Handler,
	fn func(ctx context.Context) (T, error),
	repromptFn func(ctx context.Context, cause error) (T, error),
) ExecuteResult[T] {
	result := WithRetryContext(ctx, h.retry, fn)

	if result.Err == nil {
		return ExecuteResult[T]{Value: result.Value, Attempts: result.Attempts}
	}

	if Categorize(result.Err) != CategoryEscalatable || repromptFn == nil {
		if h.onExhausted != nil {
			h.onExhausted(result.Err)
		}
		return ExecuteResult[T]{Err: result.Err, Attempts: result.Attempts}
	}

	if h.onReprompt != nil {
		h.onReprompt(result.Err)
	}
	h.logger.Info("issuing corrective reprompt", "cause", result.Err)

	value, err := repromptFn(ctx, result.Err)
	attempts := result.Attempts + 1
	if err != nil {
		if h.onExhausted != nil {
			h.onExhausted(err)
		}
		return ExecuteResult[T]{Err: err, Attempts: attempts}
	}
	return ExecuteResult[T]{Value: value, Attempts: attempts, Reprompted: true}
}

// SimpleHandler provides retry-only error handling with no corrective
// reprompt protocol, for callers (function/router nodes) that have no
// notion of "reprompting a model".
type SimpleHandler struct {
	retry  RetryConfig
	logger *slog.Logger
}

// NewSimpleHandler creates a handler that only retries transient errors.
func NewSimpleHandler(opts ...HandlerOption) *SimpleHandler {
	h := &Handler{
		retry:  NodeRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return &SimpleHandler{
		retry:  h.retry,
		logger: h.logger,
	}
}

// Execute runs a function with retry handling only.
func (h *SimpleHandler) Execute(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	result := WithRetryContext(ctx, h.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return result.Err
}

// ExecuteWithValue runs a function with retry handling and returns a value.
func ExecuteWithValue[T any](
	ctx context.Context,
	h *SimpleHandler,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	result := WithRetryContext(ctx, h.retry, fn)
	return result.Value, result.Err
}

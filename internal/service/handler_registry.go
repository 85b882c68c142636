package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// Handler performs the work for one job type. It receives a copy of the job and reports
// the outcome of the attempt. The context carries the queue timeout as its deadline.
type Handler func(ctx context.Context, job model.Job) model.Outcome

// TypedHandler is a handler whose payload has already been resolved to T.
type TypedHandler[T any] func(ctx context.Context, job model.Job, payload T) model.Outcome

var (
	// ErrHandlerAlreadyRegistered is returned when a job type already has a handler.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")
	// ErrInvalidHandler is returned for an empty job type or nil handler.
	ErrInvalidHandler = errors.New("invalid handler registration")
)

// PayloadMismatchError reports that a job payload could not be resolved to the type a
// typed handler expects.
type PayloadMismatchError struct {
	JobType model.JobType
	Want    string
	Got     string
	Err     error
}

func (e *PayloadMismatchError) Error() string {
	msg := fmt.Sprintf("payload type mismatch for job type %q: want %s, got %s", e.JobType, e.Want, e.Got)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PayloadMismatchError) Unwrap() error { return e.Err }

// Reason implements observability/errors.Reasoner.
func (e *PayloadMismatchError) Reason() string { return ReasonPayloadMismatch }

// HandlerFromFunc adapts a conventional (result, error) function to a Handler.
func HandlerFromFunc(fn func(ctx context.Context, job model.Job) (any, error)) Handler {
	return func(ctx context.Context, job model.Job) model.Outcome {
		result, err := fn(ctx, job)
		if err != nil {
			return model.FailErr(err)
		}
		return model.Succeed(result)
	}
}

// HandlerRegistry maps job types to handlers. It is safe for concurrent use.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[model.JobType]Handler)}
}

// Register associates h with jobType. A second registration for the same type fails with
// ErrHandlerAlreadyRegistered; use Replace to swap a handler deliberately.
func (r *HandlerRegistry) Register(jobType model.JobType, h Handler) error {
	if err := validateRegistration(jobType, h); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerAlreadyRegistered, jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Replace installs h for jobType whether or not a handler exists and reports whether one was replaced.
func (r *HandlerRegistry) Replace(jobType model.JobType, h Handler) (bool, error) {
	if err := validateRegistration(jobType, h); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.handlers[jobType]
	r.handlers[jobType] = h
	return existed, nil
}

// Lookup returns the handler for jobType.
func (r *HandlerRegistry) Lookup(jobType model.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types in sorted order.
func (r *HandlerRegistry) Types() []model.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func validateRegistration(jobType model.JobType, h Handler) error {
	if strings.TrimSpace(string(jobType)) == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidHandler)
	}
	if h == nil {
		return fmt.Errorf("%w: handler for %q is nil", ErrInvalidHandler, jobType)
	}
	return nil
}

// RegisterTyped registers a handler that expects payloads of type T.
//
// At dispatch the payload is checked against T: a T or non-nil *T is used directly and raw
// JSON ([]byte or json.RawMessage) is decoded into T. A missing payload (nil, empty or
// blank JSON, or JSON null) and anything else fails the attempt with a PayloadMismatchError
// message instead of reaching fn.
//
// This is a package-level generic function because Go does not allow generic methods.
func RegisterTyped[T any](r *HandlerRegistry, jobType model.JobType, fn TypedHandler[T]) error {
	if fn == nil {
		return fmt.Errorf("%w: handler for %q is nil", ErrInvalidHandler, jobType)
	}
	return r.Register(jobType, TypedHandlerFunc(jobType, fn))
}

// TypedHandlerFunc wraps fn into an untyped Handler performing the payload check.
func TypedHandlerFunc[T any](jobType model.JobType, fn TypedHandler[T]) Handler {
	return func(ctx context.Context, job model.Job) model.Outcome {
		payload, err := ResolvePayload[T](jobType, job.Payload)
		if err != nil {
			return model.FailErr(err)
		}
		return fn(ctx, job, payload)
	}
}

// ResolvePayload converts a stored payload to T using the rules described on RegisterTyped.
func ResolvePayload[T any](jobType model.JobType, raw any) (T, error) {
	var zero T
	switch v := raw.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	case json.RawMessage:
		return decodePayload[T](jobType, v)
	case []byte:
		return decodePayload[T](jobType, v)
	}
	return zero, &PayloadMismatchError{
		JobType: jobType,
		Want:    fmt.Sprintf("%T", zero),
		Got:     fmt.Sprintf("%T", raw),
	}
}

func decodePayload[T any](jobType model.JobType, data []byte) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, &PayloadMismatchError{
			JobType: jobType,
			Want:    fmt.Sprintf("%T", out),
			Got:     "empty json",
		}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &PayloadMismatchError{
			JobType: jobType,
			Want:    fmt.Sprintf("%T", out),
			Got:     "json",
			Err:     err,
		}
	}
	return out, nil
}

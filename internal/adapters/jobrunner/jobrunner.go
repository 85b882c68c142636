// Package jobrunner provides the built-in job handlers shipped with the queue service.
package jobrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/service"
)

// JobTypeNoop succeeds immediately and echoes its payload. Used to smoke-test a deployment.
const JobTypeNoop model.JobType = "noop"

// BuiltinOptions selects and configures the built-in handlers.
type BuiltinOptions struct {
	Logger *slog.Logger

	// Webhook enables webhook.deliver when non-nil.
	Webhook *WebhookOptions
}

// RegisterBuiltinHandlers registers the noop handler and, when configured, webhook.deliver.
func RegisterBuiltinHandlers(reg *service.HandlerRegistry, opts BuiltinOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := reg.Register(JobTypeNoop, HandleNoop); err != nil {
		return fmt.Errorf("register %s: %w", JobTypeNoop, err)
	}

	if opts.Webhook != nil {
		wopts := *opts.Webhook
		if wopts.Logger == nil {
			wopts.Logger = logger
		}
		wh := NewWebhookHandler(wopts)
		if err := service.RegisterTyped[WebhookPayload](reg, JobTypeWebhook, wh.Handle); err != nil {
			return fmt.Errorf("register %s: %w", JobTypeWebhook, err)
		}
	}

	logger.Info("built-in handlers registered", "job_types", reg.Types())
	return nil
}

// HandleNoop returns the payload as the result. Raw JSON payloads are echoed decoded.
func HandleNoop(_ context.Context, job model.Job) model.Outcome {
	switch p := job.Payload.(type) {
	case json.RawMessage:
		return model.Succeed(echoJSON(p))
	case []byte:
		return model.Succeed(echoJSON(p))
	default:
		return model.Succeed(p)
	}
}

func echoJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const defaultName = "jobqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint; used by tests and regional accounts.
	Endpoint string
}

// Client publishes trigger events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = notify.DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), defaultName),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), defaultName),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendJobFailure submits a trigger event to PagerDuty.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return notify.PostJSON(ctx, notify.PostParams{
		Client:     c.client,
		URL:        c.endpoint,
		Body:       body,
		RetryLimit: c.retryLimit,
		Service:    "pagerduty api",
	})
}

// event is an Events API v2 trigger.
type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component,omitempty"`
	Group         string         `json:"group,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

func (c *Client) buildEvent(payload notify.JobFailurePayload) event {
	details := make(map[string]any, len(payload.Metadata)+7)
	for k, v := range payload.Metadata {
		details[k] = v
	}
	// Canonical fields are written last so metadata cannot shadow them.
	details["job_id"] = payload.JobID
	details["job_type"] = payload.JobType
	details["partition_key"] = payload.PartitionKey
	details["attempts"] = payload.Attempts
	details["max_attempts"] = payload.MaxAttempts
	details["error"] = payload.Error
	details["error_class"] = payload.ErrorClass

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    strings.Trim(payload.JobType+":"+payload.JobID, ":"),
		Payload: eventPayload{
			Summary:       payload.Summary(),
			Severity:      payload.NormalizedSeverity(),
			Source:        c.source,
			Component:     c.component,
			Group:         payload.PartitionKey,
			Timestamp:     payload.Timestamp().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

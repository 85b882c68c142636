package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// PartitionURLPrefix links the partition key (tenant) to an operator page when set.
	PartitionURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL      string
	channel         string
	username        string
	retryLimit      int
	partitionPrefix string
	client          *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		webhookURL:      webhookURL,
		channel:         strings.TrimSpace(cfg.Channel),
		username:        notify.Fallback(strings.TrimSpace(cfg.Username), "jobqueue"),
		retryLimit:      max(cfg.RetryLimit, 0),
		partitionPrefix: strings.TrimSpace(cfg.PartitionURLPrefix),
		client:          hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.PostJSON(ctx, notify.PostParams{
		Client:     c.client,
		URL:        c.webhookURL,
		Body:       body,
		RetryLimit: c.retryLimit,
		Service:    "slack webhook",
	})
}

func (c *Client) formatMessage(payload notify.JobFailurePayload) map[string]any {
	var text strings.Builder
	text.WriteString("*Job failed*")
	if payload.JobID != "" {
		text.WriteString(" `" + payload.JobID + "`")
	}
	if payload.JobType != "" {
		text.WriteString(" (" + payload.JobType + ")")
	}
	text.WriteByte('\n')

	appendField(&text, "Severity", payload.NormalizedSeverity())
	appendField(&text, "Partition", c.formatPartition(payload.PartitionKey))
	appendField(&text, "Attempts", payload.AttemptsLabel())
	appendField(&text, "Error class", payload.ErrorClass)
	appendField(&text, "Error", escape(payload.Error))
	appendMetadata(&text, payload.Metadata)

	text.WriteString("• Timestamp: " + payload.Timestamp().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) formatPartition(key string) string {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return ""
	}
	label := escape(raw)
	if link := c.partitionLink(raw); link != "" {
		return fmt.Sprintf("<%s|%s>", link, label)
	}
	return label
}

func (c *Client) partitionLink(key string) string {
	if c.partitionPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.partitionPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), key)
	if err != nil {
		return ""
	}
	return link
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• " + label + ": " + value + "\n")
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text.WriteString("• Metadata:\n")
	for _, k := range keys {
		text.WriteString("    • " + k + ": " + metadata[k] + "\n")
	}
}

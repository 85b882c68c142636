package jobrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// JobTypeWebhook delivers an HTTP request described by a WebhookPayload.
const JobTypeWebhook model.JobType = "webhook.deliver"

const (
	maxResponseBodyBytes  = 4 * 1024
	defaultWebhookTimeout = 30 * time.Second
)

// Delivery failure reasons reported to metrics.
const (
	ReasonDomainBlocked = "webhook_domain_blocked"
	ReasonBadRequest    = "webhook_bad_request"
	ReasonTransport     = "webhook_transport"
	ReasonStatus        = "webhook_status"
	ReasonExpression    = "webhook_expression"
)

// ErrDomainNotAllowed is returned when the destination is outside the allowlist.
var ErrDomainNotAllowed = errors.New("destination domain not allowed")

// WebhookPayload describes one outbound delivery.
type WebhookPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	// SuccessExpression is a JMESPath expression evaluated against the JSON response body;
	// a falsy result fails the delivery.
	SuccessExpression string `json:"success_expression,omitempty"`
	// ExpectedStatus, when set, is the only accepted status code. Otherwise any 2xx passes.
	ExpectedStatus int `json:"expected_status,omitempty"`
}

// WebhookResult is stored on the job after a successful delivery.
type WebhookResult struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	BodyTruncated bool              `json:"body_truncated,omitempty"`
}

// OAuthConfig enables client-credentials authentication on outbound requests.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// WebhookOptions configures the webhook handler.
type WebhookOptions struct {
	HTTPClient     *http.Client // Optional: base client; defaults to one with Timeout
	Timeout        time.Duration
	AllowedDomains []string     // Optional: registrable domains or exact hosts
	OAuth          *OAuthConfig // Optional
	Logger         *slog.Logger
}

// WebhookHandler performs webhook.deliver jobs.
type WebhookHandler struct {
	client  *http.Client
	allowed []string
	logger  *slog.Logger
}

// deliveryError tags a failure with its metric reason.
type deliveryError struct {
	reason string
	err    error
}

func (e *deliveryError) Error() string  { return e.err.Error() }
func (e *deliveryError) Unwrap() error  { return e.err }
func (e *deliveryError) Reason() string { return e.reason }

func failWith(reason string, err error) model.Outcome {
	return model.FailErr(&deliveryError{reason: reason, err: err})
}

// NewWebhookHandler builds a handler from opts.
func NewWebhookHandler(opts WebhookOptions) *WebhookHandler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	client := base
	if opts.OAuth != nil && strings.TrimSpace(opts.OAuth.TokenURL) != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		// The token source keeps this context for refreshes; it only carries the base client.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(tokenCtx)
		client.Timeout = base.Timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make([]string, 0, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, d)
		}
	}

	return &WebhookHandler{
		client:  client,
		allowed: allowed,
		logger:  logger.With("component", "webhook_handler"),
	}
}

// Handle delivers the webhook described by payload.
func (h *WebhookHandler) Handle(ctx context.Context, job model.Job, payload WebhookPayload) model.Outcome {
	req, err := h.buildRequest(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrDomainNotAllowed) {
			return failWith(ReasonDomainBlocked, err)
		}
		return failWith(ReasonBadRequest, err)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return failWith(ReasonTransport, fmt.Errorf("send request: %w", err))
	}
	body, truncated, readErr := readResponseBody(resp.Body)
	closeErr := resp.Body.Close()
	if err := errors.Join(readErr, closeErr); err != nil {
		return failWith(ReasonTransport, fmt.Errorf("read response body: %w", err))
	}

	h.logger.InfoContext(ctx, "webhook delivered",
		"job_id", job.ID,
		"method", req.Method,
		"host", req.URL.Host,
		"status_code", resp.StatusCode,
		"duration", time.Since(start),
	)

	result := WebhookResult{
		StatusCode:    resp.StatusCode,
		Headers:       flattenResponseHeaders(resp.Header),
		Body:          body,
		BodyTruncated: truncated,
	}

	if !statusAccepted(resp.StatusCode, payload.ExpectedStatus) {
		return failWith(ReasonStatus, fmt.Errorf("unexpected status: got %d", resp.StatusCode))
	}

	if expr := strings.TrimSpace(payload.SuccessExpression); expr != "" {
		if err := evaluateSuccess(expr, body); err != nil {
			return failWith(ReasonExpression, err)
		}
	}

	return model.Succeed(result)
}

func (h *WebhookHandler) buildRequest(ctx context.Context, p WebhookPayload) (*http.Request, error) {
	u, err := url.Parse(strings.TrimSpace(p.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("invalid url: missing host")
	}
	if !h.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Hostname())
	}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytesReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if len(p.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// hostAllowed matches host against the allowlist by exact host or registrable domain (eTLD+1).
func (h *WebhookHandler) hostAllowed(host string) bool {
	if len(h.allowed) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if slices.Contains(h.allowed, host) {
		return true
	}
	if net.ParseIP(host) != nil {
		return false
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return slices.Contains(h.allowed, etld1)
}

func statusAccepted(got, expected int) bool {
	if expected > 0 {
		return got == expected
	}
	return got >= 200 && got < 300
}

func evaluateSuccess(expr, body string) error {
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("success expression needs a JSON response: %w", err)
	}
	res, err := jmespath.Search(expr, data)
	if err != nil {
		return fmt.Errorf("evaluate success expression: %w", err)
	}
	if !truthy(res) {
		return fmt.Errorf("success expression %q evaluated to %v", expr, res)
	}
	return nil
}

// truthy follows JMESPath truthiness: false, null, empty strings, arrays and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// bytesReader returns an io.Reader for b, or nil if b is empty.
func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}

func flattenResponseHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

func readResponseBody(body io.Reader) (string, bool, error) {
	if body == nil {
		return "", false, nil
	}
	limited := io.LimitReader(body, maxResponseBodyBytes+1)
	data, readErr := io.ReadAll(limited)
	truncated := len(data) > maxResponseBodyBytes
	if truncated {
		data = data[:maxResponseBodyBytes]
		if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
			readErr = drainErr
		}
	}
	return string(data), truncated, readErr
}

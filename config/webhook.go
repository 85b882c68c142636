package config

import (
	"strings"
	"time"
)

// WebhookConfig configures the built-in webhook.deliver handler.
type WebhookConfig struct {
	Enabled bool          `env:"WEBHOOK_ENABLED" envDefault:"false"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`

	// AllowedDomains restricts destinations to these registrable domains or exact hosts.
	// Empty allows any destination.
	AllowedDomains []string `env:"WEBHOOK_ALLOWED_DOMAINS" envSeparator:","`

	OAuth WebhookOAuthConfig `envPrefix:"WEBHOOK_OAUTH_"`
}

// WebhookOAuthConfig enables client-credentials auth on outbound deliveries when TokenURL is set.
type WebhookOAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"        envSeparator:","`
}

// Enabled reports whether OAuth is configured.
func (c *WebhookOAuthConfig) Enabled() bool {
	return c.TokenURL != ""
}

// Sanitize applies guardrails to webhook configuration values.
func (c *WebhookConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	domains := c.AllowedDomains[:0]
	for _, d := range c.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	c.AllowedDomains = domains
	c.OAuth.TokenURL = strings.TrimSpace(c.OAuth.TokenURL)
}

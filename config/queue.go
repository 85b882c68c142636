package config

import "time"

const minCycleInterval = 10 * time.Millisecond

// QueueConfig contains queue engine and driver loop configuration.
type QueueConfig struct {
	// Concurrency is the maximum number of jobs executing at once.
	Concurrency int `env:"QUEUE_CONCURRENCY" envDefault:"5"`

	// MaxRetries is the default attempt ceiling for submitted jobs.
	MaxRetries int `env:"QUEUE_MAX_RETRIES" envDefault:"3"`

	// RetryDelay is the backoff unit; attempt n waits n*RetryDelay.
	RetryDelay time.Duration `env:"QUEUE_RETRY_DELAY" envDefault:"5s"`

	// Timeout is the per-execution ceiling.
	Timeout time.Duration `env:"QUEUE_TIMEOUT" envDefault:"30s"`

	// CycleInterval is how often the driver runs a processing cycle.
	CycleInterval time.Duration `env:"QUEUE_CYCLE_INTERVAL" envDefault:"1s"`

	// DrainTimeout bounds how long shutdown waits for in-flight jobs.
	DrainTimeout time.Duration `env:"QUEUE_DRAIN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.Concurrency < 1 {
		q.Concurrency = 1
	}
	if q.MaxRetries < 1 {
		q.MaxRetries = 1
	}
	if q.RetryDelay < 0 {
		q.RetryDelay = 0
	}
	if q.Timeout <= 0 {
		q.Timeout = 30 * time.Second
	}
	if q.CycleInterval < minCycleInterval {
		q.CycleInterval = minCycleInterval
	}
	if q.DrainTimeout <= 0 {
		q.DrainTimeout = 30 * time.Second
	}
}

package config

import "time"

// DBConfig contains PostgreSQL configuration for the job history archive.
type DBConfig struct {
	// Enabled turns on archiving of terminal jobs and the history endpoints.
	Enabled  bool   `env:"ENABLED"                 envDefault:"false"`
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobqueue"`
	Password string `env:"PASSWORD"                envDefault:"jobqueue"`
	Name     string `env:"NAME"                    envDefault:"jobqueue"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`
}

// Sanitize keeps pool settings usable.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 1 {
		d.MaxOpenConns = 10
	}
	if d.MaxIdleConns < 0 || d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = min(2, d.MaxOpenConns)
	}
	if d.ConnMaxLifetime < 0 {
		d.ConnMaxLifetime = 0
	}
}

// RedisConfig contains Redis configuration for the job snapshot mirror.
type RedisConfig struct {
	// Enabled turns on mirroring of job state to Redis.
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// SnapshotKeyPrefix namespaces snapshot keys.
	SnapshotKeyPrefix string `env:"SNAPSHOT_KEY_PREFIX" envDefault:"jobqueue:job:"`
	// SnapshotTTL bounds how long a snapshot outlives its last update.
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	if r.SnapshotTTL < time.Minute {
		r.SnapshotTTL = time.Minute
	}
	if r.SnapshotKeyPrefix == "" {
		r.SnapshotKeyPrefix = "jobqueue:job:"
	}
}

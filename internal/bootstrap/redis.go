package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-jobqueue/config"
)

// ConnectRedis establishes the connection used for job snapshots. Cluster, sentinel and
// single-node deployments all yield a redis.UniversalClient.
//
//nolint:ireturn // the concrete client depends on the deployment mode.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	client := newUniversalClient(cfg.RedisConfig, opts)
	if err := ping(ctx, func(c context.Context) error { return client.Ping(c).Err() }, client.Close); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "redis connected", "addr", redactAddr(desc))
	}
	return client, nil
}

// newUniversalClient forces the client kind from the mode flags. NewUniversalClient alone
// would pick a cluster client for any multi-address list.
//
//nolint:ireturn // see ConnectRedis.
func newUniversalClient(cfg config.RedisConfig, opts *redis.UniversalOptions) redis.UniversalClient {
	switch {
	case cfg.UseCluster:
		return redis.NewClusterClient(opts.Cluster())
	case cfg.UseSentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

// redisOptions translates config into client options plus a loggable address description.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	switch {
	case cfg.UseCluster:
		addrs := trimAll(cfg.ClusterNodes)
		opts := &redis.UniversalOptions{Addrs: addrs, Password: cfg.Password}
		if len(addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			if err := applyURI(opts, cfg.URI); err != nil {
				return nil, "", fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil

	case cfg.UseSentinel:
		addrs := trimAll(cfg.SentinelNodes)
		if len(addrs) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return &redis.UniversalOptions{
			Addrs:            addrs,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, "sentinel:" + cfg.SentinelMasterName, nil

	default:
		uri := strings.TrimSpace(cfg.URI)
		if uri == "" {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		opts := &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password}
		if err := applyURI(opts, uri); err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		return opts, opts.Addrs[0], nil
	}
}

// applyURI overlays a redis:// or rediss:// URL onto opts. Bare host:port values are used as is.
func applyURI(opts *redis.UniversalOptions, raw string) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "redis://") && !strings.HasPrefix(raw, "rediss://") {
		opts.Addrs = []string{raw}
		return nil
	}
	parsed, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// redactAddr strips credentials from a redis address before it is logged.
func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		u.User = url.User("*")
		return u.Redacted()
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

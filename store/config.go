package store

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/redis/go-redis/v9"
)

// Providers of the store
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

// DefaultPrefix is the key prefix of the Redis store
const DefaultPrefix = "toolagent"

// Config of the message store
type Config struct {
	// Provider is memory or redis, memory by default
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=memory redis"`
	// RedisURL is the connection URL, e.g. redis://localhost:6379/0
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	// Prefix of the Redis keys
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// New returns the store for the configured provider
func New(cfg *Config) (MessageStore, error) {
	switch strings.ToLower(values.StringsCoalesce(cfg.Provider, ProviderMemory)) {
	case ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("redis_url is required for the redis store")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid redis_url")
		}
		return NewRedisStore(redis.NewClient(opts), values.StringsCoalesce(cfg.Prefix, DefaultPrefix)), nil
	}
	return nil, errors.Newf("unsupported store provider: %q", cfg.Provider)
}

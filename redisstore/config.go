package redisstore

import "time"

// Config holds Redis connection settings for the session store.
type Config struct {
	// ConnectionURL in the form "redis://:password@localhost:6379/0".
	ConnectionURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// KeyPrefix namespaces session keys so multiple applications can share
	// one Redis instance.
	KeyPrefix string `env:"SESSION_REDIS_KEY_PREFIX" envDefault:"sess:"`

	// PoolSize bounds the connection pool; exhaustion surfaces as
	// ErrResourceExhausted instead of blocking indefinitely.
	PoolSize int `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// ConnectTimeout bounds establishing a single connection.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"5s"`

	// PoolTimeout bounds waiting for a free connection from the pool.
	PoolTimeout time.Duration `env:"REDIS_POOL_TIMEOUT" envDefault:"3s"`

	RetryAttempts int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
}

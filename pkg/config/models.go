package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Collab    CollabConfig
	Store     StoreConfig
	Redis     RedisConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	SendQueueSize int           `mapstructure:"sendQueueSize"`
}

type CollabConfig struct {
	// When true, a content-change from a connection that does not hold the
	// document's edit lock (while one is held) is rejected with edit-unauthorized.
	// When false the lock is purely advisory.
	EnforceEditLock bool `mapstructure:"enforceEditLock"`
	// Zero disables lock expiry. A non-zero TTL lets a stale lock be displaced
	// by the next request after it ages out.
	LockTTL time.Duration `mapstructure:"lockTTL"`
	// Revisions retained per document; oldest evicted beyond this.
	RevisionCap int `mapstructure:"revisionCap"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "memory" or "postgres"
	PostgresDSN string `mapstructure:"postgresDsn"`
}

type RedisConfig struct {
	// Empty disables the cross-node relay.
	Addr string `mapstructure:"addr"`
}

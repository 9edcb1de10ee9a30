// Package config loads service configuration from environment
// variables once at startup. The resulting struct is immutable.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	Port   string
	DBPath string

	// Logging
	LogLevel string

	// Cache
	CacheTTL time.Duration

	// Notification dispatch
	DispatchInterval time.Duration

	// Per-IP mutation rate limit
	RateLimitPerMinute int

	// Web push (both empty disables the push sink)
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// Care-file export (empty bucket disables export)
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	ExportPrefix string
}

// Load reads configuration from the environment, applying defaults.
// Nothing is required: the service runs with local SQLite and no push
// or export configured.
func Load() *Config {
	return &Config{
		Port:               getEnvString("CARECIRCLE_PORT", "8080"),
		DBPath:             getEnvString("CARECIRCLE_DB_PATH", "carecircle.db"),
		LogLevel:           getEnvString("CARECIRCLE_LOG_LEVEL", "info"),
		CacheTTL:           getEnvDuration("CARECIRCLE_CACHE_TTL", 30*time.Second),
		DispatchInterval:   getEnvDuration("CARECIRCLE_DISPATCH_INTERVAL", 5*time.Second),
		RateLimitPerMinute: getEnvInt("CARECIRCLE_RATE_LIMIT", 120),
		VAPIDPublicKey:     os.Getenv("CARECIRCLE_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:    os.Getenv("CARECIRCLE_VAPID_PRIVATE_KEY"),
		S3Endpoint:         os.Getenv("CARECIRCLE_S3_ENDPOINT"),
		S3Region:           getEnvString("CARECIRCLE_S3_REGION", "auto"),
		S3Bucket:           os.Getenv("CARECIRCLE_S3_BUCKET"),
		S3AccessKey:        os.Getenv("CARECIRCLE_S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("CARECIRCLE_S3_SECRET_KEY"),
		ExportPrefix:       getEnvString("CARECIRCLE_EXPORT_PREFIX", "care-files"),
	}
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// ExportEnabled reports whether S3 export is configured.
func (c *Config) ExportEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

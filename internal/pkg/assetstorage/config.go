package assetstorage

import (
	"strconv"
	"time"

	"github.com/nkoenig/assetvault/internal/pkg/env"
)

// Config holds S3 connection settings for the asset bucket.
type Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	URLLifetime     time.Duration
}

// LoadConfig reads the storage configuration from the environment.
func LoadConfig() *Config {
	enabled, _ := strconv.ParseBool(env.GetEnv("S3_ENABLED", "false"))
	lifetimeMin, err := strconv.Atoi(env.GetEnv("S3_URL_LIFETIME_MINUTES", "15"))
	if err != nil || lifetimeMin <= 0 {
		lifetimeMin = 15
	}
	return &Config{
		Enabled:         enabled,
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		Bucket:          env.GetEnv("S3_BUCKET", "assetvault"),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		URLLifetime:     time.Duration(lifetimeMin) * time.Minute,
	}
}

// IsEnabled reports whether the bucket is configured for use.
func (c *Config) IsEnabled() bool {
	return c.Enabled && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

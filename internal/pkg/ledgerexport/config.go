package ledgerexport

import (
	"errors"
	"fmt"
	"time"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
)

// Config holds the S3 settings for payment ledger exports
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads export configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("S3_LEDGER_PREFIX", "ledger"),
		Enabled:         env.GetEnvBool("LEDGER_EXPORT_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when ledger export is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when ledger export is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when ledger export is enabled")
		}
	}

	return config, nil
}

func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey builds the key for an export generated at t.
// Format: <prefix>/YYYY/MM/payments-YYYYMMDDTHHMMSSZ-<run>.csv
func (c *Config) ObjectKey(t time.Time, runID string) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%04d/%02d/payments-%s-%s.csv", c.Prefix, t.Year(), int(t.Month()), t.Format("20060102T150405Z"), runID)
}

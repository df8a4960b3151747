package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/platform/env"
)

type Config struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Region           string
	UseSSL           bool
	BucketSpecs      string
	BucketAutomation string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("RELAY_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:         env.String("RELAY_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:        env.String("RELAY_MINIO_ACCESS_KEY", "relay"),
		SecretKey:        env.String("RELAY_MINIO_SECRET_KEY", "relayminio"),
		Region:           env.String("RELAY_MINIO_REGION", "us-east-1"),
		UseSSL:           useSSL,
		BucketSpecs:      env.String("RELAY_MINIO_BUCKET_SPECS", "specifications"),
		BucketAutomation: env.String("RELAY_MINIO_BUCKET_AUTOMATION", "automation"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketSpecs) == "" {
		return errors.New("specs bucket is required")
	}
	if strings.TrimSpace(c.BucketAutomation) == "" {
		return errors.New("automation bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// Buckets lists every bucket the relay writes to.
func (c Config) Buckets() []string {
	return []string{c.BucketSpecs, c.BucketAutomation}
}

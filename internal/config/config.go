package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // ADI_DATABASE_URL (required)
	HTTPAddr    string // ADI_HTTP_ADDR (default ":8080")
	NATSURL     string // ADI_NATS_URL (optional, empty = no event mirror)

	// Poller / recovery
	PollInterval time.Duration // ADI_POLL_INTERVAL (default 5s)
	Lookback     time.Duration // ADI_LOOKBACK (default 24h)

	// Worker pool
	Workers int // ADI_WORKERS (default 4)

	// Session retry policy
	ConnectAttempts int           // ADI_CONNECT_ATTEMPTS (default 5)
	ConnectDelay    time.Duration // ADI_CONNECT_DELAY (default 10s)
	SessionTTL      time.Duration // ADI_SESSION_TTL (default 10m)

	// Path rewrite applied to every submitted file path
	RewriteFrom string // ADI_REWRITE_FROM (optional legacy mount prefix)
	RewriteTo   string // ADI_REWRITE_TO (replacement prefix)

	// OMERO server connection (privileged identity)
	OmeroHost     string // ADI_OMERO_HOST (default "localhost")
	OmeroPort     int    // ADI_OMERO_PORT (default 4064)
	OmeroUser     string // ADI_OMERO_USER (default "root")
	OmeroPassword string // ADI_OMERO_PASSWORD
	OmeroBinary   string // ADI_OMERO_BIN (default "omero")

	// Managed repository root, scanned during post-upload reconciliation
	ManagedRepoDir string // ADI_MANAGED_REPO (optional)

	// Preprocessing runner
	DockerBinary      string        // ADI_DOCKER_BIN (default "docker")
	PreprocessTimeout time.Duration // ADI_PREPROCESS_TIMEOUT (default 30m)

	// Export settings
	ExportInterval   time.Duration // ADI_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // ADI_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // ADI_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // ADI_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Prefix   string        // ADI_EXPORT_S3_PREFIX (default "adi/exports")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("ADI_DATABASE_URL"),
		HTTPAddr:         envOrDefault("ADI_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("ADI_NATS_URL"),
		RewriteFrom:      os.Getenv("ADI_REWRITE_FROM"),
		RewriteTo:        os.Getenv("ADI_REWRITE_TO"),
		OmeroHost:        envOrDefault("ADI_OMERO_HOST", "localhost"),
		OmeroUser:        envOrDefault("ADI_OMERO_USER", "root"),
		OmeroPassword:    os.Getenv("ADI_OMERO_PASSWORD"),
		OmeroBinary:      envOrDefault("ADI_OMERO_BIN", "omero"),
		ManagedRepoDir:   os.Getenv("ADI_MANAGED_REPO"),
		DockerBinary:     envOrDefault("ADI_DOCKER_BIN", "docker"),
		ExportS3Bucket:   os.Getenv("ADI_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("ADI_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("ADI_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Prefix:   envOrDefault("ADI_EXPORT_S3_PREFIX", "adi/exports"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("ADI_DATABASE_URL is required")
	}

	var err error
	if c.PollInterval, err = envDuration("ADI_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if c.Lookback, err = envDuration("ADI_LOOKBACK", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.ConnectDelay, err = envDuration("ADI_CONNECT_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = envDuration("ADI_SESSION_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if c.PreprocessTimeout, err = envDuration("ADI_PREPROCESS_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("ADI_EXPORT_INTERVAL", 0); err != nil {
		return nil, err
	}
	if c.Workers, err = envInt("ADI_WORKERS", 4); err != nil {
		return nil, err
	}
	if c.ConnectAttempts, err = envInt("ADI_CONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if c.OmeroPort, err = envInt("ADI_OMERO_PORT", 4064); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

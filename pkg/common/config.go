package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPIKey           = "SuperSecret123"
	DefaultPort             = "3000"
	DefaultDBPath           = "greenhouse.db"
	DefaultDBConnectTimeout = 30 * time.Second

	DBTypePostgres = "postgres"
	DBTypeFile     = "file"
	DBTypeMemory   = "memory"
)

type Config struct {
	DatabaseURL      string
	DBType           string
	DBPath           string
	DBConnectTimeout time.Duration

	// APIKey guards the write endpoints. The fallback value is public, set API_KEY in any real deployment.
	APIKey string

	HTTPHostPort string
	GrpcHostPort string

	// RateLimited is false when no default rate is configured.
	RateLimited  bool
	DefaultRate  float64
	DefaultBurst int
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getenv(EnvKeyDatabaseURL, ""),
		DBPath:           getenv(EnvKeyDBPath, DefaultDBPath),
		DBConnectTimeout: DefaultDBConnectTimeout,
		APIKey:           getenv(EnvKeyAPIKey, DefaultAPIKey),
		HTTPHostPort:     ":" + getenv(EnvKeyPort, DefaultPort),
		GrpcHostPort:     getenv(EnvKeyGrpcHostPort, ""),
	}

	defaultDBType := DBTypeFile
	if cfg.DatabaseURL != "" {
		defaultDBType = DBTypePostgres
	}
	cfg.DBType = getenv(EnvKeyDBType, defaultDBType)

	switch cfg.DBType {
	case DBTypePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%s=%s requires %s", EnvKeyDBType, DBTypePostgres, EnvKeyDatabaseURL)
		}
	case DBTypeFile, DBTypeMemory:
	default:
		return nil, fmt.Errorf("unknown %s: %q", EnvKeyDBType, cfg.DBType)
	}

	if v := getenv(EnvKeyDBConnectTimeout, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s, should be a duration like 30s: %w", EnvKeyDBConnectTimeout, err)
		}
		cfg.DBConnectTimeout = d
	}

	if v := getenv(EnvKeyDefaultRate, ""); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s, should be a float64 value: %w", EnvKeyDefaultRate, err)
		}
		burst, err := strconv.ParseInt(getenv(EnvKeyDefaultBurst, "1"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s, should be an int value: %w", EnvKeyDefaultBurst, err)
		}
		cfg.RateLimited = true
		cfg.DefaultRate = rate
		cfg.DefaultBurst = int(burst)
	}

	return cfg, nil
}

// ABOUTME: Configuration loader for the capacity exporter
// ABOUTME: Loads settings from environment variables with defaults

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Port string

	// OpenStack control plane
	OSAuthURL           string
	OSUsername          string
	OSPassword          string
	OSProjectName       string
	OSUserDomainName    string
	OSProjectDomainName string
	OSRegionName        string
	OSSkipSSLValidation bool // explicit opt-in for insecure connections
	OSProxy             string

	// Reference-data cache TTLs (seconds)
	VolumeTypeCacheTTL int // volume type definitions (default 3600)
	ShardCacheTTL      int // shard topology (default 1800)

	// Pool accounting policy
	Shards                  []string // static shard list (fallback when vSphere is not configured)
	ExpectedBackends        []string // backends that must report in every shard
	AllowUnexpectedBackends bool     // count pools from backends outside the expected list (default: true)

	// vSphere shard topology discovery (optional)
	VSphereHost       string
	VSphereUsername   string
	VSpherePassword   string
	VSphereDatacenter string
	VSphereInsecure   bool
}

// VSphereConfigured returns true if vSphere credentials are set
func (c *Config) VSphereConfigured() bool {
	return c.VSphereHost != "" && c.VSphereUsername != "" && c.VSpherePassword != "" && c.VSphereDatacenter != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "9102"),

		OSAuthURL:           ensureScheme(os.Getenv("OS_AUTH_URL")),
		OSUsername:          os.Getenv("OS_USERNAME"),
		OSPassword:          os.Getenv("OS_PASSWORD"),
		OSProjectName:       os.Getenv("OS_PROJECT_NAME"),
		OSUserDomainName:    getEnv("OS_USER_DOMAIN_NAME", "Default"),
		OSProjectDomainName: getEnv("OS_PROJECT_DOMAIN_NAME", "Default"),
		OSRegionName:        os.Getenv("OS_REGION_NAME"),
		OSSkipSSLValidation: getEnvBool("OS_SKIP_SSL_VALIDATION", false),
		OSProxy:             os.Getenv("OS_PROXY"),

		VolumeTypeCacheTTL: getEnvInt("VOLUME_TYPE_CACHE_TTL", 3600),
		ShardCacheTTL:      getEnvInt("SHARD_CACHE_TTL", 1800),

		Shards:                  getEnvStringList("SHARDS"),
		ExpectedBackends:        getEnvStringList("EXPECTED_BACKENDS"),
		AllowUnexpectedBackends: getEnvBool("ALLOW_UNEXPECTED_BACKENDS", true),

		VSphereHost:       os.Getenv("VSPHERE_HOST"),
		VSphereUsername:   os.Getenv("VSPHERE_USERNAME"),
		VSpherePassword:   os.Getenv("VSPHERE_PASSWORD"),
		VSphereDatacenter: os.Getenv("VSPHERE_DATACENTER"),
		VSphereInsecure:   getEnvBool("VSPHERE_INSECURE", false),
	}

	// Validate required fields
	if cfg.OSAuthURL == "" {
		return nil, fmt.Errorf("OS_AUTH_URL is required")
	}
	if cfg.OSUsername == "" {
		return nil, fmt.Errorf("OS_USERNAME is required")
	}
	if cfg.OSPassword == "" {
		return nil, fmt.Errorf("OS_PASSWORD is required")
	}
	if cfg.OSProjectName == "" {
		return nil, fmt.Errorf("OS_PROJECT_NAME is required")
	}
	if cfg.VolumeTypeCacheTTL <= 0 {
		return nil, fmt.Errorf("VOLUME_TYPE_CACHE_TTL must be positive")
	}
	if cfg.ShardCacheTTL <= 0 {
		return nil, fmt.Errorf("SHARD_CACHE_TTL must be positive")
	}

	return cfg, nil
}

// ensureScheme prepends https:// when the URL has no scheme.
func ensureScheme(url string) string {
	if url == "" {
		return url
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "https://" + url
	}
	return url
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvStringList parses a comma-separated env var into a trimmed slice.
func getEnvStringList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

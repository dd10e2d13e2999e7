// Package config loads the reconciliation configuration from an optional
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Catalog       CatalogConfig
	Feed          FeedConfig
	Cache         CacheConfig
	Database      DatabaseConfig
	Policy        PolicyConfig
	Output        OutputConfig
	Observability ObservabilityConfig
}

// CatalogConfig locates the ports catalog and fixes the flavor enumeration
type CatalogConfig struct {
	IndexPath        string
	FlavorMajor      int
	FlavorFirstMinor int
	FlavorLastMinor  int
}

// FeedConfig configures the vulnerability feed and CVE registry clients
type FeedConfig struct {
	Endpoint      string
	CVEEndpoint   string
	Timeout       time.Duration
	Concurrency   int
	RetryAttempts int
	RetryBackoff  time.Duration
	CacheTTL      time.Duration
}

// CacheConfig configures the feed response cache
type CacheConfig struct {
	Type       string // sqlite or memory
	SQLitePath string
}

// DatabaseConfig locates the vulnerability-database snapshot and the
// suppression lists
type DatabaseConfig struct {
	VuXMLPath    string
	IgnorePath   string
	ReportedPath string
}

// PolicyConfig configures the review policy expression
type PolicyConfig struct {
	Expression     string
	FailureMessage string
}

// OutputConfig configures where generated entries and metrics land
type OutputConfig struct {
	NewEntriesPath      string
	ModifiedEntriesPath string
	MetricsTextfile     string
}

// ObservabilityConfig configures logging
type ObservabilityConfig struct {
	LogLevel string
}

// fileConfig mirrors the optional YAML configuration file
type fileConfig struct {
	Policy struct {
		Expression     string `yaml:"expression"`
		FailureMessage string `yaml:"failureMessage"`
	} `yaml:"policy"`
	Flavors struct {
		Major      int `yaml:"major"`
		FirstMinor int `yaml:"firstMinor"`
		LastMinor  int `yaml:"lastMinor"`
	} `yaml:"flavors"`
}

// Load loads configuration from environment variables and the optional
// configuration file named by PYSEC2VUXML_CONFIG
func Load() (*Config, error) {
	configPath := getEnv("PYSEC2VUXML_CONFIG", "pysec2vuxml.yml")

	var file fileConfig
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	flavorMajor := file.Flavors.Major
	if flavorMajor == 0 {
		flavorMajor = 3
	}
	firstMinor := file.Flavors.FirstMinor
	if firstMinor == 0 {
		firstMinor = 7
	}
	lastMinor := file.Flavors.LastMinor
	if lastMinor == 0 {
		lastMinor = 11
	}

	cfg := &Config{
		Catalog: CatalogConfig{
			IndexPath:        getEnv("PORTS_INDEX_PATH", "/usr/ports/INDEX-13"),
			FlavorMajor:      getEnvInt("FLAVOR_MAJOR", flavorMajor),
			FlavorFirstMinor: getEnvInt("FLAVOR_FIRST_MINOR", firstMinor),
			FlavorLastMinor:  getEnvInt("FLAVOR_LAST_MINOR", lastMinor),
		},
		Feed: FeedConfig{
			Endpoint:      getEnv("OSV_ENDPOINT", "https://api.osv.dev/v1/query"),
			CVEEndpoint:   getEnv("CVE_ENDPOINT", "https://cveawg.mitre.org/api/cve"),
			Timeout:       getEnvDuration("FEED_TIMEOUT", 30*time.Second),
			Concurrency:   getEnvInt("FEED_CONCURRENCY", 8),
			RetryAttempts: getEnvInt("FEED_RETRY_ATTEMPTS", 3),
			RetryBackoff:  getEnvDuration("FEED_RETRY_BACKOFF", 2*time.Second),
			CacheTTL:      getEnvDuration("FEED_CACHE_TTL", 24*time.Hour),
		},
		Cache: CacheConfig{
			Type:       getEnv("CACHE_TYPE", "sqlite"),
			SQLitePath: getEnv("CACHE_SQLITE_PATH", "pysec2vuxml.db"),
		},
		Database: DatabaseConfig{
			VuXMLPath:    getEnv("VUXML_PATH", "/usr/ports/security/vuxml/vuln.xml"),
			IgnorePath:   getEnv("IGNORE_LIST_PATH", "vulns.ignore"),
			ReportedPath: getEnv("REPORTED_LIST_PATH", "vulns.reported"),
		},
		Policy: PolicyConfig{
			Expression:     getEnv("REVIEW_POLICY_EXPRESSION", file.Policy.Expression),
			FailureMessage: getEnv("REVIEW_POLICY_FAILURE_MESSAGE", file.Policy.FailureMessage),
		},
		Output: OutputConfig{
			NewEntriesPath:      getEnv("NEW_ENTRIES_PATH", "vuxml.new"),
			ModifiedEntriesPath: getEnv("MODIFIED_ENTRIES_PATH", "vuxml.modified"),
			MetricsTextfile:     getEnv("METRICS_TEXTFILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Catalog.IndexPath == "" {
		return fmt.Errorf("ports index path is required")
	}

	if c.Catalog.FlavorMajor != 2 && c.Catalog.FlavorMajor != 3 {
		return fmt.Errorf("invalid flavor major version: %d", c.Catalog.FlavorMajor)
	}
	if c.Catalog.FlavorFirstMinor > c.Catalog.FlavorLastMinor {
		return fmt.Errorf("invalid flavor range: %d-%d", c.Catalog.FlavorFirstMinor, c.Catalog.FlavorLastMinor)
	}

	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed endpoint is required")
	}
	if c.Feed.Concurrency <= 0 {
		return fmt.Errorf("feed concurrency must be positive: %d", c.Feed.Concurrency)
	}

	if c.Cache.Type != "sqlite" && c.Cache.Type != "memory" {
		return fmt.Errorf("invalid cache type: %s (must be sqlite or memory)", c.Cache.Type)
	}
	if c.Cache.Type == "sqlite" && c.Cache.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required when using the sqlite cache")
	}

	if c.Database.VuXMLPath == "" {
		return fmt.Errorf("vulnerability database path is required")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

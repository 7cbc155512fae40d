package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Monitor  MonitorConfig
	Archive  ArchiveConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	AlertURL string
}

// MonitorConfig describes the remote passenger-event feed and the
// network layout to hydrate the graph from.
type MonitorConfig struct {
	URL               string
	Endpoint          string
	Port              string
	Username          string
	Password          string
	StompEndpoint     string
	CertPath          string
	NetworkLayoutPath string
	Runtime           time.Duration
}

// ArchiveConfig enables the optional postgres passenger-event archive.
// The archive is disabled unless a host is configured.
type ArchiveConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	DBName    string
	Retention time.Duration
}

type LoggingConfig struct {
	Level    string
	FilePath string
}

type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	cfg := &Config{
		Monitor: MonitorConfig{
			URL:               getEnv("FEED_URL", ""),
			Endpoint:          getEnv("FEED_ENDPOINT", "/network-events"),
			Port:              getEnv("FEED_PORT", "443"),
			Username:          getEnv("FEED_USERNAME", ""),
			Password:          getEnv("FEED_PASSWORD", ""),
			StompEndpoint:     getEnv("STOMP_ENDPOINT", "/passengers"),
			CertPath:          getEnv("CERT_PATH", ""),
			NetworkLayoutPath: getEnv("NETWORK_LAYOUT_PATH", ""),
			Runtime:           getSecondsEnv("RUNTIME_S", 0),
		},
		Archive: ArchiveConfig{
			Host:      getEnv("DB_HOST", ""),
			Port:      getEnv("DB_PORT", "5432"),
			User:      getEnv("DB_USER", "postgres"),
			Password:  getEnv("DB_PASSWORD", ""),
			DBName:    getEnv("DB_NAME", "railtracker"),
			Retention: getDurationEnv("ARCHIVE_RETENTION", 30*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "railtracker.log"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		AlertURL: getEnv("ALERT_WEBHOOK_URL", ""),
	}

	return cfg, nil
}

// Validate checks the fields required to reach the feed.
func (c *MonitorConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if c.Port == "" {
		return fmt.Errorf("feed port is required")
	}
	if c.NetworkLayoutPath == "" {
		return fmt.Errorf("network layout path is required")
	}
	return nil
}

// Enabled reports whether the archive sink is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Host != ""
}

func (c *ArchiveConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if s, err := strconv.Atoi(value); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return time.Duration(defaultValue) * time.Second
}

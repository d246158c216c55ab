package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	TelegramToken        string  // Telegram Bot API token
	AdminIDs             []int64 // operator user ids allowed to use admin commands
	MongoURI             string  // MongoDB connection URI
	MongoDBName          string  // MongoDB database name
	SourceRetentionDays  int     // days to keep cached source channel posts
	ForwardRatePerSecond float64 // per-target-chat forward/delete rate
	MetricsAddr          string  // optional listen address for /metrics
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "autoposter_bot"
	}

	cfg := &Config{
		TelegramToken:        os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDBName:          mongoDBName,
		SourceRetentionDays:  7,
		ForwardRatePerSecond: 0.5,
		MetricsAddr:          os.Getenv("METRICS_ADDR"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	adminIDsStr := os.Getenv("ADMIN_IDS")
	if adminIDsStr != "" {
		var err error
		cfg.AdminIDs, err = parseAdminIDs(adminIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ADMIN_IDS: %w", err)
		}
	}

	if retentionStr := strings.TrimSpace(os.Getenv("SOURCE_RETENTION_DAYS")); retentionStr != "" {
		days, err := strconv.Atoi(retentionStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SOURCE_RETENTION_DAYS: %w", err)
		}
		if days < 1 {
			return nil, fmt.Errorf("SOURCE_RETENTION_DAYS must be >= 1, got %d", days)
		}
		cfg.SourceRetentionDays = days
	}

	if rateStr := strings.TrimSpace(os.Getenv("FORWARD_RATE_PER_SECOND")); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("invalid FORWARD_RATE_PER_SECOND: %s", rateStr)
		}
		cfg.ForwardRatePerSecond = rate
	}

	return cfg, nil
}

// parseAdminIDs parses a comma separated list of user ids.
// Accepts "123456789" or "123456789,987654321".
func parseAdminIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

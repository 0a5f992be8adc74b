package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMFI reporting API
	AMFIBaseURL  string
	FundHouseID  int
	RequestDelay time.Duration
	FetchTimeout time.Duration
	RetryDays    int
	RegistryPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scheduler
	SchedulerRunDay   int
	SchedulerInterval time.Duration
	BackfillDelay     time.Duration

	// Google Sheets export (optional)
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fundflow.db"),

		AMFIBaseURL:  getEnv("AMFI_BASE_URL", "https://www.amfiindia.com/gateway/pollingsebi/api/amfi/"),
		FundHouseID:  getEnvInt("FUND_HOUSE_ID", 17),
		RequestDelay: getEnvDuration("REQUEST_DELAY", 300*time.Millisecond),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		RetryDays:    getEnvInt("RETRY_DAYS", 4),
		RegistryPath: getEnv("REGISTRY_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fundflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "month_computed"),

		SchedulerRunDay:   getEnvInt("SCHEDULER_RUN_DAY", 12),
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", time.Hour),
		BackfillDelay:     getEnvDuration("BACKFILL_DELAY", time.Second),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Flows"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate database path and ensure its directory exists
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMFI client settings
	if parsed, err := url.Parse(c.AMFIBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid AMFI base URL '%s'", c.AMFIBaseURL))
	}
	if c.FundHouseID < 0 {
		errors = append(errors, fmt.Sprintf("invalid fund house id %d: must be 0 (industry) or a positive AMFI id", c.FundHouseID))
	}
	if c.RequestDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid request delay %v: must not be negative", c.RequestDelay))
	} else if c.RequestDelay > 30*time.Second {
		errors = append(errors, fmt.Sprintf("invalid request delay %v: must be at most 30 seconds", c.RequestDelay))
	}
	if c.FetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	}
	if c.RetryDays < 0 || c.RetryDays > 10 {
		errors = append(errors, fmt.Sprintf("invalid retry days %d: must be between 0 and 10", c.RetryDays))
	}
	if c.RegistryPath != "" {
		if _, err := os.Stat(c.RegistryPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("registry file does not exist: %s", c.RegistryPath))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate scheduler configuration
	if c.SchedulerRunDay < 1 || c.SchedulerRunDay > 28 {
		errors = append(errors, fmt.Sprintf("invalid scheduler run day %d: must be between 1 and 28", c.SchedulerRunDay))
	}
	if c.SchedulerInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid scheduler interval %v: must be at least 1 minute", c.SchedulerInterval))
	} else if c.SchedulerInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid scheduler interval %v: must be at most 24 hours", c.SchedulerInterval))
	}
	if c.BackfillDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid backfill delay %v: must not be negative", c.BackfillDelay))
	}

	// Validate Google Sheets export if configured
	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google sheet name cannot be empty when a spreadsheet ID is provided")
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsExportEnabled reports whether the optional summary export is on.
func (c *Config) SheetsExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

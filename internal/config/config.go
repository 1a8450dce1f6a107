package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Classroom OAuth
	ClassroomClientID     string
	ClassroomClientSecret string
	ClassroomTokenURL     string

	// Classroom API
	ClassroomAPIBaseURL    string
	ClassroomPageSize      int
	ClassroomMaxPages      int
	ClassroomTimeout       time.Duration
	ClassroomRateLimit     float64 // req/sec
	ClassroomRateBurst     int

	// Sync
	SyncMaxConcurrent int
	SyncSchedule      string

	// Report
	ReportSchedule      string
	ReportWindowDays    int
	ReportDedupWindow   time.Duration
	ReportMaxConcurrent int
	ReportTimezone      string

	// Notify
	SendgridAPIKey  string
	SendgridHost    string
	NotifyFromEmail string
	NotifyFromName  string
	NotifyTimeout   time.Duration

	// Trigger
	JobTriggerSecret string
	RateLimitTrigger int // req/min/client

	// Job history
	JobRunRetentionDays int

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ClassroomClientID = os.Getenv("CLASSROOM_CLIENT_ID")
	if cfg.ClassroomClientID == "" {
		missing = append(missing, "CLASSROOM_CLIENT_ID")
	}

	cfg.ClassroomClientSecret = os.Getenv("CLASSROOM_CLIENT_SECRET")
	if cfg.ClassroomClientSecret == "" {
		missing = append(missing, "CLASSROOM_CLIENT_SECRET")
	}

	cfg.JobTriggerSecret = os.Getenv("JOB_TRIGGER_SECRET")
	if cfg.JobTriggerSecret == "" {
		missing = append(missing, "JOB_TRIGGER_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ClassroomTokenURL = getEnvString("CLASSROOM_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.ClassroomAPIBaseURL = getEnvString("CLASSROOM_API_BASE_URL", "https://classroom.googleapis.com")
	cfg.ClassroomPageSize = getEnvInt("CLASSROOM_PAGE_SIZE", 100)
	cfg.ClassroomMaxPages = getEnvInt("CLASSROOM_MAX_PAGES", 50)
	cfg.ClassroomTimeout = getEnvDuration("CLASSROOM_REQUEST_TIMEOUT", 15*time.Second)
	cfg.ClassroomRateLimit = getEnvFloat("CLASSROOM_RATE_LIMIT", 5)
	cfg.ClassroomRateBurst = getEnvInt("CLASSROOM_RATE_BURST", 5)

	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.SyncSchedule = getEnvString("SYNC_SCHEDULE", "@every 6h")

	cfg.ReportSchedule = getEnvString("REPORT_SCHEDULE", "@daily")
	cfg.ReportWindowDays = getEnvInt("REPORT_WINDOW_DAYS", 7)
	cfg.ReportDedupWindow = getEnvDuration("REPORT_DEDUP_WINDOW", 24*time.Hour)
	cfg.ReportMaxConcurrent = getEnvInt("REPORT_MAX_CONCURRENT", 4)
	cfg.ReportTimezone = getEnvString("REPORT_TIMEZONE", "UTC")

	cfg.SendgridAPIKey = getEnvString("SENDGRID_API_KEY", "")
	cfg.SendgridHost = getEnvString("SENDGRID_HOST", "https://api.sendgrid.com")
	cfg.NotifyFromEmail = getEnvString("NOTIFY_FROM_EMAIL", "noreply@studysync.local")
	cfg.NotifyFromName = getEnvString("NOTIFY_FROM_NAME", "StudySync")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	cfg.RateLimitTrigger = getEnvInt("RATE_LIMIT_TRIGGER", 30)
	cfg.JobRunRetentionDays = getEnvInt("JOB_RUN_RETENTION_DAYS", 30)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if _, err := time.LoadLocation(cfg.ReportTimezone); err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", cfg.ReportTimezone, err)
	}

	return cfg, nil
}

// NotificationsEnabled は通知の送信設定が揃っているかを返す。
func (c *Config) NotificationsEnabled() bool {
	return c.SendgridAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

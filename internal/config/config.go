package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	JWT       JWTConfig
	Email     EmailConfig
	Notify    NotifyConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
	Vault     VaultConfig
	LLM       LLMConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig holds the Redis connection used by the task queue and job locks.
// An empty URL runs tasks in-process and locks jobs in memory.
type RedisConfig struct {
	URL string
}

// QueueConfig holds outbound task queue settings
type QueueConfig struct {
	Concurrency int
	MaxRetry    int
	TaskTimeout time.Duration
	Retention   time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

// EmailConfig holds email-related configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AppURL       string
}

// NotifyConfig holds the manager and admin alert channels
type NotifyConfig struct {
	ManagerChannel      string `yaml:"manager_channel"`
	AdminChannel        string `yaml:"admin_channel"`
	SlackManagerWebhook string `yaml:"-"`
	SlackAdminWebhook   string `yaml:"-"`
	WebSocketEnabled    bool   `yaml:"websocket_enabled"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env      string
	Name     string `yaml:"name"`
	Version  string
	Timezone string `yaml:"timezone"`
}

// Location returns the configured business timezone
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsProduction reports whether the app runs in production mode
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	DailyReminderCron  string        `yaml:"daily_reminder_cron"`  // e.g., "0 18 * * 1-5" (weekday evenings)
	WeeklyReportCron   string        `yaml:"weekly_report_cron"`   // e.g., "0 9 * * 1" (Monday 9 AM)
	MarkAbsentCron     string        `yaml:"mark_absent_cron"`     // e.g., "0 20 * * 1-5"
	MarkLateCron       string        `yaml:"mark_late_cron"`       // e.g., "0 10 * * 1-5"
	SessionCleanupCron string        `yaml:"session_cleanup_cron"` // e.g., "0 3 * * *"
	LateCutoff         string        `yaml:"late_cutoff"`          // HH:MM local time
	EnableReminders    bool          `yaml:"enable_reminders"`
	EnableWeeklyReport bool          `yaml:"enable_weekly_report"`
	EnableAttendance   bool          `yaml:"enable_attendance"`
	LockTTL            time.Duration `yaml:"-"`
}

// LateCutoffClock returns the late cutoff as hour and minute
func (s SchedulerConfig) LateCutoffClock() (int, int, error) {
	t, err := time.Parse("15:04", s.LateCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid late cutoff %q: %w", s.LateCutoff, err)
	}
	return t.Hour(), t.Minute(), nil
}

// StorageConfig holds attachment storage limits
type StorageConfig struct {
	UploadDir         string
	MaxFileSize       int64
	MaxFilesPerParent int
	AllowedExtensions []string
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address    string
	Token      string
	Mount      string
	SecretPath string
	Enabled    bool
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Enabled bool
}

// fileConfig is the subset of settings that may come from CONFIG_FILE
type fileConfig struct {
	App       AppConfig       `yaml:"app"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 30*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "standup"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "standup_db"),
			SSLMode:         getEnv("DB_SSLMODE", "prefer"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   getEnv("DB_MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Queue: QueueConfig{
			Concurrency: getIntEnv("QUEUE_CONCURRENCY", 5),
			MaxRetry:    getIntEnv("QUEUE_MAX_RETRY", 3),
			TaskTimeout: getDurationEnv("QUEUE_TASK_TIMEOUT", 2*time.Minute),
			Retention:   getDurationEnv("QUEUE_RETENTION", 24*time.Hour),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Expiration:        getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
			RefreshExpiration: getDurationEnv("JWT_REFRESH_EXPIRATION", 168*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
			AppURL:       getEnv("APP_URL", "http://localhost:3000"),
		},
		Notify: NotifyConfig{
			ManagerChannel:      getEnv("NOTIFY_MANAGER_CHANNEL", "managers"),
			AdminChannel:        getEnv("NOTIFY_ADMIN_CHANNEL", "admins"),
			SlackManagerWebhook: getEnv("SLACK_MANAGER_WEBHOOK_URL", ""),
			SlackAdminWebhook:   getEnv("SLACK_ADMIN_WEBHOOK_URL", ""),
			WebSocketEnabled:    getBoolEnv("NOTIFY_WEBSOCKET_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"Link"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
			Duration: getDurationEnv("RATE_LIMIT_DURATION", 1*time.Minute),
		},
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Name:     getEnv("APP_NAME", "StandupDesk"),
			Version:  getEnv("APP_VERSION", "1.0.0"),
			Timezone: getEnv("APP_TIMEZONE", "Local"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 30),
		},
		Scheduler: SchedulerConfig{
			DailyReminderCron:  getEnv("SCHEDULER_DAILY_REMINDER_CRON", "0 18 * * 1-5"),
			WeeklyReportCron:   getEnv("SCHEDULER_WEEKLY_REPORT_CRON", "0 9 * * 1"),
			MarkAbsentCron:     getEnv("SCHEDULER_MARK_ABSENT_CRON", "0 20 * * 1-5"),
			MarkLateCron:       getEnv("SCHEDULER_MARK_LATE_CRON", "0 10 * * 1-5"),
			SessionCleanupCron: getEnv("SCHEDULER_SESSION_CLEANUP_CRON", "0 3 * * *"),
			LateCutoff:         getEnv("SCHEDULER_LATE_CUTOFF", "10:00"),
			EnableReminders:    getBoolEnv("SCHEDULER_ENABLE_REMINDERS", true),
			EnableWeeklyReport: getBoolEnv("SCHEDULER_ENABLE_WEEKLY_REPORT", true),
			EnableAttendance:   getBoolEnv("SCHEDULER_ENABLE_ATTENDANCE", true),
			LockTTL:            getDurationEnv("SCHEDULER_LOCK_TTL", 30*time.Minute),
		},
		Storage: StorageConfig{
			UploadDir:         getEnv("STORAGE_UPLOAD_DIR", "./uploads"),
			MaxFileSize:       int64(getIntEnv("STORAGE_MAX_FILE_SIZE", 10*1024*1024)),
			MaxFilesPerParent: getIntEnv("STORAGE_MAX_FILES", 5),
			AllowedExtensions: getSliceEnv("STORAGE_ALLOWED_EXTENSIONS", []string{"pdf", "doc", "docx", "png", "jpg", "jpeg", "zip"}),
		},
		Vault: VaultConfig{
			Address:    getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:      getEnv("VAULT_TOKEN", ""),
			Mount:      getEnv("VAULT_KV_MOUNT", "secret"),
			SecretPath: getEnv("VAULT_SECRET_PATH", "standup-desk"),
			Enabled:    getBoolEnv("VAULT_ENABLED", false),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "http://localhost:11434"),
			Model:   getEnv("LLM_MODEL", "llama3"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Timeout: getDurationEnv("LLM_TIMEOUT", 60*time.Second),
			Enabled: getBoolEnv("LLM_ENABLED", true),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyFile overlays settings from a YAML file. Variables set in the
// environment keep precedence over the file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	overlay(&c.App.Name, fc.App.Name, "APP_NAME")
	overlay(&c.App.Timezone, fc.App.Timezone, "APP_TIMEZONE")
	overlay(&c.Scheduler.DailyReminderCron, fc.Scheduler.DailyReminderCron, "SCHEDULER_DAILY_REMINDER_CRON")
	overlay(&c.Scheduler.WeeklyReportCron, fc.Scheduler.WeeklyReportCron, "SCHEDULER_WEEKLY_REPORT_CRON")
	overlay(&c.Scheduler.MarkAbsentCron, fc.Scheduler.MarkAbsentCron, "SCHEDULER_MARK_ABSENT_CRON")
	overlay(&c.Scheduler.MarkLateCron, fc.Scheduler.MarkLateCron, "SCHEDULER_MARK_LATE_CRON")
	overlay(&c.Scheduler.SessionCleanupCron, fc.Scheduler.SessionCleanupCron, "SCHEDULER_SESSION_CLEANUP_CRON")
	overlay(&c.Scheduler.LateCutoff, fc.Scheduler.LateCutoff, "SCHEDULER_LATE_CUTOFF")
	overlay(&c.Notify.ManagerChannel, fc.Notify.ManagerChannel, "NOTIFY_MANAGER_CHANNEL")
	overlay(&c.Notify.AdminChannel, fc.Notify.AdminChannel, "NOTIFY_ADMIN_CHANNEL")

	return nil
}

func overlay(dst *string, fromFile, envKey string) {
	if fromFile == "" || os.Getenv(envKey) != "" {
		return
	}
	*dst = fromFile
}

// ApplySecrets overrides secret settings with values fetched from a secret store.
// Unknown keys are ignored.
func (c *Config) ApplySecrets(secrets map[string]string) {
	set := func(dst *string, key string) {
		if v, ok := secrets[key]; ok && v != "" {
			*dst = v
		}
	}
	set(&c.JWT.Secret, "jwt_secret")
	set(&c.Email.SMTPPassword, "smtp_password")
	set(&c.Notify.SlackManagerWebhook, "slack_manager_webhook")
	set(&c.Notify.SlackAdminWebhook, "slack_admin_webhook")
	set(&c.LLM.APIKey, "llm_api_key")
	set(&c.Database.Password, "db_password")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Password == "" && c.App.IsProduction() {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	if _, _, err := c.Scheduler.LateCutoffClock(); err != nil {
		return err
	}
	if c.Storage.MaxFileSize <= 0 || c.Storage.MaxFilesPerParent <= 0 {
		return fmt.Errorf("storage limits must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
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

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

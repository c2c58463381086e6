package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string
	WorkerCount int

	// Redis (provider availability cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS (notification queue + SES)
	AWSRegion              string
	AWSAccessKeyID         string
	AWSSecretAccessKey     string
	AWSEndpointOverride    string
	NotificationQueueURL   string
	UseMemoryQueue         bool
	NotifyPollWaitSeconds  int
	NotifyShutdownDrainFor time.Duration

	// Email delivery
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// Zoom videoconference provisioning
	ZoomBaseURL   string
	ZoomAPIKey    string
	ZoomAPISecret string

	// Acuity calendar booking
	AcuityBaseURL string
	AcuityUserID  string
	AcuityAPIKey  string

	// Athena EHR scheduling API
	AthenaBaseURL      string
	AthenaClientID     string
	AthenaClientSecret string
	AthenaPracticeID   string

	// Reconciliation window for EHR-backed accounts
	ReconcileWindowDays int

	// Intake gating score threshold
	IntakeGateMinScore int

	// HTTP surface
	SchedulingWebhookSecret string
	StaffAuthSecret         string
	CORSAllowedOrigins      []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		WorkerCount:            getEnvAsInt("WORKER_COUNT", 2),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisTLS:               getEnvAsBool("REDIS_TLS", false),
		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:    getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		NotificationQueueURL:   getEnv("NOTIFICATION_QUEUE_URL", ""),
		UseMemoryQueue:         getEnvAsBool("USE_MEMORY_QUEUE", false),
		NotifyPollWaitSeconds:  getEnvAsInt("NOTIFY_POLL_WAIT_SECONDS", 10),
		NotifyShutdownDrainFor: getEnvAsDuration("NOTIFY_SHUTDOWN_DRAIN", 30*time.Second),
		EmailProvider:          strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "Scheduling"),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		ZoomBaseURL:            getEnv("ZOOM_BASE_URL", ""),
		ZoomAPIKey:             getEnv("ZOOM_API_KEY", ""),
		ZoomAPISecret:          getEnv("ZOOM_API_SECRET", ""),
		AcuityBaseURL:          getEnv("ACUITY_BASE_URL", ""),
		AcuityUserID:           getEnv("ACUITY_USER_ID", ""),
		AcuityAPIKey:           getEnv("ACUITY_API_KEY", ""),
		AthenaBaseURL:          getEnv("ATHENA_BASE_URL", ""),
		AthenaClientID:         getEnv("ATHENA_CLIENT_ID", ""),
		AthenaClientSecret:     getEnv("ATHENA_CLIENT_SECRET", ""),
		AthenaPracticeID:       getEnv("ATHENA_PRACTICE_ID", ""),
		ReconcileWindowDays:    getEnvAsInt("RECONCILE_WINDOW_DAYS", 60),
		IntakeGateMinScore:     getEnvAsInt("INTAKE_GATE_MIN_SCORE", 0),

		SchedulingWebhookSecret: getEnv("SCHEDULING_WEBHOOK_SECRET", ""),
		StaffAuthSecret:         getEnv("STAFF_AUTH_SECRET", ""),
		CORSAllowedOrigins:      getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice retrieves a comma-separated environment variable
func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsDuration retrieves an environment variable as a duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Shortest reminder lead time. The tolerance window must stay under half of
// it so the 2h and 24h windows never overlap a neighbouring run's target.
const shortestLeadTime = 2 * time.Hour

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	AdminDBURL     string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	TenantCacheTTL time.Duration

	DefaultCountryCode   string
	AvailabilityScanDays int

	SMSProvider              string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioFromNumber         string
	WhatsAppAPIBaseURL       string

	// Email confirmations for patients without a phone
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESConfigSet      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Jobs
	JobTriggerQueueURL string
	JobRunsTable       string
	JobTriggerSecret   string
	JobLocalTicker     bool
	JobPollInterval    time.Duration
	ReminderTolerance  time.Duration
	WaitlistLookback   time.Duration
	WaitlistHorizon    time.Duration
	WaitlistBatchSize  int

	// HTTP edge
	ChannelJWTSecret     string
	AdminJWTSecret       string
	CORSAllowedOrigins   []string
	PublicRateLimitRPS   float64
	PublicRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminDBURL:     getEnv("ADMIN_DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		TenantCacheTTL: getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),

		DefaultCountryCode:   getEnv("DEFAULT_COUNTRY_CODE", "1"),
		AvailabilityScanDays: getEnvAsInt("AVAILABILITY_SCAN_DAYS", 30),

		SMSProvider:              strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:         getEnv("TWILIO_FROM_NUMBER", ""),
		WhatsAppAPIBaseURL:       getEnv("WHATSAPP_API_BASE_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Scheduler"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		JobTriggerQueueURL: getEnv("JOB_TRIGGER_QUEUE_URL", ""),
		JobRunsTable:       getEnv("JOB_RUNS_TABLE", ""),
		JobTriggerSecret:   getEnv("JOB_TRIGGER_SECRET", ""),
		JobLocalTicker:     getEnvAsBool("JOB_LOCAL_TICKER", false),
		JobPollInterval:    getEnvAsDuration("JOB_POLL_INTERVAL", 4*time.Minute),
		ReminderTolerance:  getEnvAsDuration("REMINDER_TOLERANCE", 20*time.Minute),
		WaitlistLookback:   getEnvAsDuration("WAITLIST_LOOKBACK", 5*time.Minute),
		WaitlistHorizon:    getEnvAsDuration("WAITLIST_HORIZON", 48*time.Hour),
		WaitlistBatchSize:  getEnvAsInt("WAITLIST_BATCH_SIZE", 10),

		ChannelJWTSecret:     getEnv("CHANNEL_JWT_SECRET", ""),
		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		PublicRateLimitRPS:   getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 5),
		PublicRateLimitBurst: getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 20),
	}
}

// LoadDotEnv loads a local .env file in development. A missing file is not
// an error. Variables already set in the environment win.
func LoadDotEnv(filenames ...string) error {
	if env := strings.ToLower(os.Getenv("ENV")); env != "" && env != "development" {
		return nil
	}
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var present []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("config: load dotenv: %w", err)
	}
	return nil
}

// Validate checks the job timing invariants. A tolerance at or below the
// poll interval leaves appointments that no run selects; a lookback at or
// below it misses cancellations between runs.
func (c *Config) Validate() error {
	var errs []error
	if c.JobPollInterval <= 0 {
		errs = append(errs, errors.New("JOB_POLL_INTERVAL must be positive"))
	}
	if c.ReminderTolerance <= c.JobPollInterval {
		errs = append(errs, fmt.Errorf("REMINDER_TOLERANCE (%s) must be greater than JOB_POLL_INTERVAL (%s)", c.ReminderTolerance, c.JobPollInterval))
	}
	if c.ReminderTolerance >= shortestLeadTime/2 {
		errs = append(errs, fmt.Errorf("REMINDER_TOLERANCE (%s) must be less than %s", c.ReminderTolerance, shortestLeadTime/2))
	}
	if c.WaitlistLookback <= c.JobPollInterval {
		errs = append(errs, fmt.Errorf("WAITLIST_LOOKBACK (%s) must be greater than JOB_POLL_INTERVAL (%s)", c.WaitlistLookback, c.JobPollInterval))
	}
	if c.WaitlistBatchSize <= 0 {
		errs = append(errs, errors.New("WAITLIST_BATCH_SIZE must be positive"))
	}
	if c.AvailabilityScanDays <= 0 {
		errs = append(errs, errors.New("AVAILABILITY_SCAN_DAYS must be positive"))
	}
	switch c.EmailProvider {
	case "sendgrid", "ses", "none":
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER %q must be sendgrid, ses or none", c.EmailProvider))
	}
	switch c.SMSProvider {
	case "auto", "telnyx", "twilio":
	default:
		errs = append(errs, fmt.Errorf("SMS_PROVIDER %q must be auto, telnyx or twilio", c.SMSProvider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

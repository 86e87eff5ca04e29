package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	BaseURL     string

	OTLPEndpoint string
	OtelEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// WebhookKey authenticates Postgres-trigger callbacks. Header name and
	// failure shape are fixed by the trigger configuration.
	WebhookKey string

	StripeSecretKey    string
	StripePagePriceID  string
	StripeEmailPriceID string

	Email   EmailConfig
	Storage StorageConfig
	Redis   RedisConfig
}

type EmailConfig struct {
	Provider      string // postmark, smtp or noop
	From          string
	PostmarkToken string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
}

type StorageConfig struct {
	Bucket string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "changespage"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		BaseURL:     getenv("BASE_URL", "https://changes.page"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OtelEnabled:  getenvBool("OTEL_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		WebhookKey: strings.TrimSpace(getenv("SUPABASE_WEBHOOK_KEY", "")),

		StripeSecretKey:    strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		StripePagePriceID:  strings.TrimSpace(getenv("STRIPE_PAGE_PRICE_ID", "")),
		StripeEmailPriceID: strings.TrimSpace(getenv("STRIPE_EMAIL_PRICE_ID", "")),

		Email: EmailConfig{
			Provider:      strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			From:          getenv("EMAIL_FROM", "notifications@changes.page"),
			PostmarkToken: strings.TrimSpace(getenv("POSTMARK_SERVER_TOKEN", "")),
			SMTPHost:      getenv("SMTP_HOST", "localhost"),
			SMTPPort:      getenvInt("SMTP_PORT", 587),
			SMTPUsername:  getenv("SMTP_USERNAME", ""),
			SMTPPassword:  getenv("SMTP_PASSWORD", ""),
		},
		Storage: StorageConfig{
			Bucket: getenv("STORAGE_BUCKET", ""),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

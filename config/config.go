package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Env    string
	Lender struct {
		Name string // printed on letters and used in chat greetings
	}
	Server struct {
		Port int
	}
	DB struct {
		Driver      string // postgres or memory
		Host        string
		Port        int
		User        string
		Password    string
		DBName      string
		SSLMode     string
		AutoMigrate bool
		LogLevel    string
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // hours
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	OTP struct {
		Length        int
		TTL           time.Duration
		HMACKey       string
		ExposeCode    bool // echo the code in API responses, for demos only
		SendLimit     int
		SendWindow    time.Duration
		SweepInterval time.Duration
	}
	Redis struct {
		Address  string
		Password string
		DB       int
		LockTTL  time.Duration
	}
	Gemini struct {
		APIKey string
		Model  string
	}
	WhatsApp struct {
		Enabled   bool
		StorePath string
	}
	Storage struct {
		Backend   string // local or gcs
		LocalDir  string
		GCSBucket string
	}
	Events struct {
		Backend       string // log, kafka or pubsub
		KafkaBrokers  []string
		KafkaTopic    string
		PubSubProject string
		PubSubTopic   string
	}
	Bureau struct {
		BaseURL string
		Region  string // default region for phone numbers
	}
	Collaborators struct {
		Timeout time.Duration
	}
	RateLimit struct {
		Requests int
		Window   time.Duration
	}
}

// NewConfig loads the configuration from the environment, an optional .env
// file and an optional config.yaml in the working directory
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	cfg.Env = v.GetString("ENV")
	cfg.Lender.Name = v.GetString("LENDER_NAME")

	// Server
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT %q", v.GetString("SERVER_PORT"))
	}

	// Database
	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")
	cfg.DB.LogLevel = v.GetString("DB_LOG_LEVEL")
	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "memory" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	// JWT
	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	cfg.JWT.ExpiresIn = v.GetInt("JWT_EXPIRES_IN")
	if cfg.JWT.ExpiresIn <= 0 {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN %q", v.GetString("JWT_EXPIRES_IN"))
	}

	// SMTP
	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	cfg.SMTP.Port = v.GetInt("SMTP_PORT")
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")

	// OTP
	cfg.OTP.Length = v.GetInt("OTP_LENGTH")
	cfg.OTP.TTL = v.GetDuration("OTP_TTL")
	cfg.OTP.HMACKey = v.GetString("OTP_HMAC_KEY")
	cfg.OTP.ExposeCode = v.GetBool("OTP_EXPOSE_CODE")
	cfg.OTP.SendLimit = v.GetInt("OTP_SEND_LIMIT")
	cfg.OTP.SendWindow = v.GetDuration("OTP_SEND_WINDOW")
	cfg.OTP.SweepInterval = v.GetDuration("OTP_SWEEP_INTERVAL")
	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		return nil, fmt.Errorf("invalid OTP_LENGTH %d", cfg.OTP.Length)
	}
	if cfg.OTP.TTL <= 0 {
		return nil, fmt.Errorf("invalid OTP_TTL %q", v.GetString("OTP_TTL"))
	}

	// Redis
	cfg.Redis.Address = v.GetString("REDIS_ADDRESS")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.LockTTL = v.GetDuration("REDIS_LOCK_TTL")

	// Gemini
	cfg.Gemini.APIKey = v.GetString("GEMINI_API_KEY")
	cfg.Gemini.Model = v.GetString("GEMINI_MODEL")

	// WhatsApp
	cfg.WhatsApp.Enabled = v.GetBool("WHATSAPP_ENABLED")
	cfg.WhatsApp.StorePath = v.GetString("WHATSAPP_STORE_PATH")

	// Storage
	cfg.Storage.Backend = strings.ToLower(v.GetString("STORAGE_BACKEND"))
	cfg.Storage.LocalDir = v.GetString("STORAGE_LOCAL_DIR")
	cfg.Storage.GCSBucket = v.GetString("GCS_BUCKET")
	if cfg.Storage.Backend == "gcs" && cfg.Storage.GCSBucket == "" {
		return nil, errors.New("GCS_BUCKET is required for the gcs storage backend")
	}

	// Events
	cfg.Events.Backend = strings.ToLower(v.GetString("EVENTS_BACKEND"))
	cfg.Events.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Events.KafkaTopic = v.GetString("KAFKA_TOPIC")
	cfg.Events.PubSubProject = v.GetString("PUBSUB_PROJECT_ID")
	cfg.Events.PubSubTopic = v.GetString("PUBSUB_TOPIC")
	if cfg.Events.Backend == "kafka" && len(cfg.Events.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required for the kafka events backend")
	}

	// Partners
	cfg.Bureau.BaseURL = v.GetString("BUREAU_BASE_URL")
	cfg.Bureau.Region = v.GetString("PHONE_REGION")

	cfg.Collaborators.Timeout = v.GetDuration("COLLABORATOR_TIMEOUT")
	if cfg.Collaborators.Timeout <= 0 {
		return nil, fmt.Errorf("invalid COLLABORATOR_TIMEOUT %q", v.GetString("COLLABORATOR_TIMEOUT"))
	}

	cfg.RateLimit.Requests = v.GetInt("RATE_LIMIT_REQUESTS")
	cfg.RateLimit.Window = v.GetDuration("RATE_LIMIT_WINDOW")

	return cfg, nil
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN builds the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// MigrationURL builds the URL golang-migrate expects
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.DBName, c.DB.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LENDER_NAME", "LoanFlow Finance Limited")
	v.SetDefault("SERVER_PORT", 8080)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "loanflow")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_LOG_LEVEL", "warn")

	v.SetDefault("JWT_SECRET_KEY", "change-me-jwt-secret")
	v.SetDefault("JWT_EXPIRES_IN", 24)

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@loanflow.local")

	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_HMAC_KEY", "change-me-otp-key")
	v.SetDefault("OTP_EXPOSE_CODE", false)
	v.SetDefault("OTP_SEND_LIMIT", 5)
	v.SetDefault("OTP_SEND_WINDOW", "15m")
	v.SetDefault("OTP_SWEEP_INTERVAL", "1m")

	v.SetDefault("REDIS_ADDRESS", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_LOCK_TTL", "30s")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")

	v.SetDefault("WHATSAPP_ENABLED", false)
	v.SetDefault("WHATSAPP_STORE_PATH", "whatsapp.db")

	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "uploads")
	v.SetDefault("GCS_BUCKET", "")

	v.SetDefault("EVENTS_BACKEND", "log")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "loan-decisions")
	v.SetDefault("PUBSUB_PROJECT_ID", "")
	v.SetDefault("PUBSUB_TOPIC", "loan-decisions")

	v.SetDefault("BUREAU_BASE_URL", "")
	v.SetDefault("PHONE_REGION", "IN")

	v.SetDefault("COLLABORATOR_TIMEOUT", "10s")

	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

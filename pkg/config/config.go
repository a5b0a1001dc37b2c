package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"

	"zarigaas/pkg/logger"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	WebsiteURL  string `env:"WEBSITE_URL" envDefault:"http://localhost:5173"`
	// Origins allowed for CORS and WebSocket upgrades; empty allows any
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// firestore, mongo or memory
	StoreDriver string `env:"STORE_DRIVER" envDefault:"firestore"`

	FirebaseProject            string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseServiceAccountPath string `env:"FIREBASE_SERVICE_ACCOUNT_PATH" envDefault:"./serviceAccount.json"`

	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"zarigaas"`

	// firebase or dev; dev accepts "Bearer dev:<uid>" and only outside production
	AuthMode string `env:"AUTH_MODE" envDefault:"firebase"`

	WriteTimeoutMS       int `env:"WRITE_TIMEOUT_MS" envDefault:"10000"`
	ConfirmationTTLSec   int `env:"CONFIRMATION_TTL_SECONDS" envDefault:"120"`
	SubscribeRetryMS     int `env:"SUBSCRIBE_RETRY_MS" envDefault:"2000"`
	MessageRatePerMinute int `env:"MESSAGE_RATE_PER_MINUTE" envDefault:"10"`
	PitchRatePerHour     int `env:"PITCH_RATE_PER_HOUR" envDefault:"10"`

	NotifyEnabled    bool   `env:"NOTIFY_ENABLED" envDefault:"false"`
	NotifyCollection string `env:"NOTIFY_COLLECTION" envDefault:"pitches"`
	SMTPHost         string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort         int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPassword     string `env:"SMTP_PASSWORD"`
	SMTPFrom         string `env:"SMTP_FROM"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogOutput     string `env:"LOG_OUTPUT" envDefault:"stdout"`
	LogFile       string `env:"LOG_FILE" envDefault:"logs/zarigaas.log"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "firestore", "mongo", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthMode {
	case "firebase":
	case "dev":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=dev is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.StoreDriver == "firestore" && c.FirebaseProject == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore driver")
	}
	switch c.NotifyCollection {
	case "pitches", "messages":
	default:
		return fmt.Errorf("NOTIFY_COLLECTION must be pitches or messages, got %q", c.NotifyCollection)
	}
	if c.WriteTimeoutMS <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT_MS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func (c *Config) ConfirmationTTL() time.Duration {
	return time.Duration(c.ConfirmationTTLSec) * time.Second
}

func (c *Config) SubscribeRetry() time.Duration {
	return time.Duration(c.SubscribeRetryMS) * time.Millisecond
}

func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		Output:     c.LogOutput,
		FilePath:   c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}

// Package config loads registrationctl settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/notifier"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is read once at startup and treated as immutable.
type Config struct {
	DatabaseDriver string `json:"database_driver"`
	DatabaseURL    string `json:"database_url"`

	RegistrationOpen   bool     `json:"registration_open"`
	ModerationRequired bool     `json:"moderation_required"`
	ActivationDays     int      `json:"activation_days"`
	Moderators         []string `json:"moderators"`
	PhoneRegion        string   `json:"phone_region"`

	SMTP notifier.Config `json:"smtp"`

	RedisURL     string   `json:"redis_url"`
	KafkaBrokers []string `json:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic"`

	MetricsTextfile string `json:"metrics_textfile"`
}

var _ registration.PolicyConfig = (*Config)(nil)

// Load reads .env files (missing files are ignored) and the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		DatabaseDriver:     strings.ToLower(getEnvString("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:        getEnvString("DATABASE_URL", "file:registration.db?cache=shared"),
		RegistrationOpen:   getEnvBool("REGISTRATION_OPEN", true),
		ModerationRequired: getEnvBool("REGISTRATION_MODERATION", false),
		ActivationDays:     getEnvInt("REGISTRATION_ACTIVATION_DAYS", 7),
		Moderators:         getEnvList("REGISTRATION_MODERATORS"),
		PhoneRegion:        getEnvString("REGISTRATION_PHONE_REGION", registration.DefaultPhoneRegion),
		SMTP: notifier.Config{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvString("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
			SiteName: getEnvString("SITE_NAME", "go-registration"),
			BaseURL:  getEnvString("BASE_URL", "http://localhost:8080"),
		},
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    getEnvList("KAFKA_BROKERS"),
		KafkaTopic:      getEnvString("KAFKA_TOPIC", "registration-events"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.New("DATABASE_DRIVER must be sqlite or postgres")
	}

	return cfg, nil
}

func (c *Config) GetRegistrationOpen() bool {
	return c.RegistrationOpen
}

func (c *Config) GetModerationRequired() bool {
	return c.ModerationRequired
}

func (c *Config) GetActivationDays() int {
	return c.ActivationDays
}

func (c *Config) GetModerators() []string {
	return c.Moderators
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.SMTP.Password != "" {
		c.SMTP.Password = "******"
	}
	return c
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return v
}

// getEnvList splits on commas that separate entries such as
// "Jane <jane@example.com>, ops@example.com".
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
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

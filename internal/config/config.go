// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminID     int64  `mapstructure:"admin_id"`
	WebhookHost string `mapstructure:"webhook_host"`
	Debug       bool   `mapstructure:"debug"`
	// Timezone is the IANA zone dates are shown in.
	Timezone    string `mapstructure:"timezone"`
}

// Location resolves Timezone.
func (c TelegramConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type DBConfig struct {
	URL          string        `mapstructure:"url"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"name"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxConns     int           `mapstructure:"max_conns"`
	MinConns     int           `mapstructure:"min_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
	Migrate      bool          `mapstructure:"migrate"`
}

// DSN returns the configured URL, or builds one from the discrete fields.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type StripeConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	WebhookKey string `mapstructure:"webhook_key"`
	PriceID    string `mapstructure:"price_id"`
}

// Enabled reports whether real payments are configured. Otherwise the bot runs in free test mode.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != "" && c.PriceID != ""
}

type ReminderConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Window   time.Duration `mapstructure:"window"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Telegram        TelegramConfig `mapstructure:"telegram"`
	DB              DBConfig       `mapstructure:"db"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Session         SessionConfig  `mapstructure:"session"`
	Stripe          StripeConfig   `mapstructure:"stripe"`
	Reminder        ReminderConfig `mapstructure:"reminder"`
	Server          ServerConfig   `mapstructure:"server"`
	Log             LogConfig      `mapstructure:"log"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
}

var envBindings = map[string][]string{
	"telegram.token":        {"BOT_TOKEN", "TELEGRAM_TOKEN"},
	"telegram.admin_id":     {"ADMIN_ID"},
	"telegram.webhook_host": {"WEBHOOK_HOST", "RENDER_EXTERNAL_HOSTNAME"},
	"telegram.debug":        {"TELEGRAM_DEBUG"},
	"telegram.timezone":     {"TIMEZONE"},
	"db.url":                {"DATABASE_URL"},
	"db.host":               {"DB_HOST"},
	"db.port":               {"DB_PORT"},
	"db.user":               {"DB_USER"},
	"db.password":           {"DB_PASSWORD"},
	"db.name":               {"DB_NAME"},
	"db.sslmode":            {"DB_SSL_MODE"},
	"db.max_conns":          {"DB_MAX_CONNS"},
	"db.min_conns":          {"DB_MIN_CONNS"},
	"db.conn_lifetime":      {"DB_CONN_LIFETIME"},
	"db.migrate":            {"DB_MIGRATE"},
	"redis.addr":            {"REDIS_ADDR"},
	"redis.password":        {"REDIS_PASSWORD"},
	"redis.db":              {"REDIS_DB"},
	"session.ttl":           {"SESSION_TTL"},
	"stripe.secret_key":     {"STRIPE_SECRET_KEY"},
	"stripe.webhook_key":    {"STRIPE_WEBHOOK_KEY"},
	"stripe.price_id":       {"STRIPE_PRICE_ID"},
	"reminder.schedule":     {"REMINDER_SCHEDULE"},
	"reminder.window":       {"REMINDER_WINDOW"},
	"server.port":           {"PORT", "SERVER_PORT"},
	"log.level":             {"LOG_LEVEL"},
	"log.format":            {"LOG_FORMAT"},
	"shutdown_timeout":      {"SHUTDOWN_TIMEOUT"},
}

// Load reads .env, an optional config file and the environment, in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.carwash-bot")

	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("server.port", "10000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telegram.timezone", "Europe/Moscow")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "carwash")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime", 5*time.Minute)
	v.SetDefault("db.migrate", true)
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("reminder.schedule", "0 0 10 * * *")
	v.SetDefault("reminder.window", 72*time.Hour)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is not configured (BOT_TOKEN)")
	}
	if c.Stripe.Enabled() && c.Stripe.WebhookKey == "" {
		return errors.New("stripe webhook key is required when stripe is enabled")
	}
	if _, err := c.Telegram.Location(); err != nil {
		return err
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from environment variables
// and an optional config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Mail     MailConfig     `mapstructure:"mail"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	PublicURL     string        `mapstructure:"public_url"`
	FrontendURL   string        `mapstructure:"frontend_url"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	EncryptionKey string        `mapstructure:"encryption_key"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig is only used when the session backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	RememberMeTTL    time.Duration `mapstructure:"remember_me_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LockDuration     time.Duration `mapstructure:"lock_duration"`
	AdminEmail       string        `mapstructure:"admin_email"`
	AdminPassword    string        `mapstructure:"admin_password"`
}

type PaymentsConfig struct {
	Currency string `mapstructure:"currency"`
}

// MailConfig is the fallback transport when no SMTP settings are stored.
type MailConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	AdminTo   string `mapstructure:"admin_to"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

// Load reads configuration with sensible defaults. Environment variables win
// over config.yaml; nested keys map to upper-case names with underscores
// (mongo.uri -> MONGO_URI).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Short names kept for existing deployments.
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("server.encryption_key", "ENCRYPTION_KEY")
	_ = v.BindEnv("auth.admin_email", "ADMIN_EMAIL")
	_ = v.BindEnv("auth.admin_password", "ADMIN_PASSWORD")
	_ = v.BindEnv("session.backend", "SESSION_BACKEND")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// CORS origins come in as a comma separated env var.
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Server.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(c.Server.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.Server.EncryptionKey))
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4001)
	v.SetDefault("server.public_url", "http://localhost:4001")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.cors_origins", "http://localhost:3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.encryption_key", "")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "tarifly")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.remember_me_ttl", "168h")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.max_login_attempts", 5)
	v.SetDefault("auth.lock_duration", "30m")
	v.SetDefault("auth.admin_email", "admin@tarifly.fr")
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("payments.currency", "EUR")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from_email", "no-reply@tarifly.fr")
	v.SetDefault("mail.from_name", "Tarifly")
	v.SetDefault("mail.admin_to", "")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.sweep_interval", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/serviqo/serviqo/internal/database"
	"github.com/serviqo/serviqo/internal/services"
)

// Config represents the runtime configuration for the Serviqo admin backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT         JWTSettings        `mapstructure:"jwt"`
	Session     SessionSettings    `mapstructure:"session"`
	Bootstrap   BootstrapSettings  `mapstructure:"bootstrap"`
	Invitations InvitationSettings `mapstructure:"invitations"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures in-memory session lifetimes.
type SessionSettings struct {
	MaxAge    time.Duration `mapstructure:"max_age"`
	IdleLimit time.Duration `mapstructure:"idle_limit"`
}

// BootstrapSettings selects how the initial super admin comes to exist.
// Policy is either "email" or "first_user"; exactly one is active. Password
// gives the bootstrap super admin a credentials login under the email policy.
type BootstrapSettings struct {
	Policy   string `mapstructure:"policy"`
	Email    string `mapstructure:"email"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
}

// InvitationSettings configures invitation lifetimes.
type InvitationSettings struct {
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`
}

// AuditConfig controls audit log retention.
type AuditConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// MaintenanceConfig schedules the background cleanup job.
type MaintenanceConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SERVIQO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Auth.Bootstrap.Policy {
	case "", services.BootstrapPolicyEmail, services.BootstrapPolicyFirstUser:
	default:
		return fmt.Errorf("config: unknown bootstrap policy %q", c.Auth.Bootstrap.Policy)
	}
	if c.Auth.Bootstrap.Policy == services.BootstrapPolicyFirstUser && c.Auth.Bootstrap.Email != "" {
		return errors.New("config: bootstrap email must be empty under the first_user policy")
	}
	return nil
}

// DatabaseOptions converts the loaded settings into connection options.
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		DSN:      c.Database.DSN,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		User:     c.Database.User,
		Password: c.Database.Password,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/serviqo.sqlite")

	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.max_age", "24h")
	v.SetDefault("auth.session.idle_limit", "2h")
	v.SetDefault("auth.bootstrap.policy", services.BootstrapPolicyEmail)
	v.SetDefault("auth.invitations.default_expiry", "72h")

	v.SetDefault("audit.retention_days", 365)

	v.SetDefault("maintenance.schedule", "@every 10m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

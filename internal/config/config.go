package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix               = "ASKME"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = DriverSQLite
	defaultDatabasePath     = "askme.db"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultSessionIssuer    = "askme-auth"
	defaultCookieName       = "askme_session"
	defaultPerPage          = 10
	defaultPopularTagsLimit = 10
	defaultBestMembersLimit = 5
	defaultTokenTTLMinutes  = 24 * 60
)

const (
	// DriverSQLite stores data in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverPostgres stores data in PostgreSQL reachable through database.dsn.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabaseDriver       string
	DatabasePath         string
	DatabaseDSN          string
	LogLevel             string
	LogFormat            string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	SessionTokenTTL      time.Duration
	PerPage              int
	PopularTagsLimit     int
	BestMembersLimit     int
}

// LoadDotEnv reads KEY=value pairs from the given files (".env" when none are
// named) into the process environment. Missing files are ignored and
// variables that are already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("pagination.per_page", defaultPerPage)
	configViper.SetDefault("sidebar.popular_tags", defaultPopularTagsLimit)
	configViper.SetDefault("sidebar.best_members", defaultBestMembersLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       originList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         configViper.GetString("database.path"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTokenTTL:      time.Duration(configViper.GetInt("session.token_ttl_minutes")) * time.Minute,
		PerPage:              configViper.GetInt("pagination.per_page"),
		PopularTagsLimit:     configViper.GetInt("sidebar.popular_tags"),
		BestMembersLimit:     configViper.GetInt("sidebar.best_members"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported", c.LogFormat)
	}
	if c.SessionTokenTTL <= 0 {
		return fmt.Errorf("session.token_ttl_minutes must be positive")
	}
	if c.PerPage < 1 {
		return fmt.Errorf("pagination.per_page must be positive")
	}
	if c.PopularTagsLimit < 0 || c.BestMembersLimit < 0 {
		return fmt.Errorf("sidebar limits must not be negative")
	}
	return nil
}

// originList accepts both repeated values and a single comma separated env value.
func originList(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

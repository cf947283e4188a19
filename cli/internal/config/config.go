package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem used for all migration-file IO. Tests swap in an
// in-memory implementation.
var AppFs = afero.NewOsFs()

// Config holds the runner configuration. Database credentials come from the
// environment only; migration files never embed them.
type Config struct {
	DatabaseURL   string
	Provider      string
	MigrationsDir string
	LockTimeout   time.Duration
	StrictLint    bool
}

// Load resolves configuration from, in increasing priority: defaults, a
// .sqlward.yaml config file, SQLWARD_* environment variables, and a local
// .env / .env.local pair.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".sqlward")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "sqlward"))

	viper.SetEnvPrefix("SQLWARD")
	viper.AutomaticEnv()

	viper.SetDefault("migrations_dir", "migrations")
	viper.SetDefault("lock_timeout", "15s")
	viper.SetDefault("strict_lint", false)

	// Config file is optional.
	_ = viper.ReadInConfig()

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Provider:      viper.GetString("provider"),
		MigrationsDir: viper.GetString("migrations_dir"),
		LockTimeout:   viper.GetDuration("lock_timeout"),
		StrictLint:    viper.GetBool("strict_lint"),
	}

	if cfg.Provider == "" && cfg.DatabaseURL != "" {
		cfg.Provider = ProviderFromURL(cfg.DatabaseURL)
	}

	return cfg, nil
}

// RequireDatabase validates that enough is configured to open a connection.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.Provider == "" {
		return fmt.Errorf("could not infer database provider from DATABASE_URL; set provider in .sqlward.yaml or SQLWARD_PROVIDER")
	}
	return nil
}

// DSN returns the driver name and data source string for sql.Open.
func (c *Config) DSN() (driver string, dsn string, err error) {
	switch c.Provider {
	case "postgres", "postgresql":
		return "postgres", c.DatabaseURL, nil
	case "mysql":
		dsn, err := mysqlDSN(c.DatabaseURL)
		if err != nil {
			return "", "", err
		}
		return "mysql", dsn, nil
	case "sqlite", "sqlite3":
		return "sqlite3", strings.TrimPrefix(c.DatabaseURL, "sqlite://"), nil
	default:
		return "", "", fmt.Errorf("unsupported provider %q", c.Provider)
	}
}

// mysqlDSN converts a mysql:// URL into the user:pass@tcp(host:port)/db form
// the driver expects. A value already in native form passes through.
func mysqlDSN(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "mysql://") {
		return rawURL, nil
	}
	native := strings.TrimPrefix(rawURL, "mysql://")
	if strings.Contains(native, "@tcp(") || strings.Contains(native, "@unix(") {
		return native, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid mysql URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	for k, v := range u.Query() {
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[k] = v[0]
	}
	return cfg.FormatDSN(), nil
}

// ProviderFromURL infers the provider from a connection URL scheme.
func ProviderFromURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "file:") {
		return "sqlite"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

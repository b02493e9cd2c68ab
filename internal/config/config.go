package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// AppDirName is the directory created under the per-user data directory in
// production builds.
const AppDirName = "data-collector"

// DBFileName is the SQLite file name inside AppDirName.
const DBFileName = "db.sqlite"

type Config struct {
	Env          string   `mapstructure:"ENV"`
	Host         string   `mapstructure:"HOST"`
	Port         string   `mapstructure:"PORT"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	DataDir      string   `mapstructure:"DATA_DIR"`
	DBMaxConns   int32    `mapstructure:"DB_MAX_CONNS"`
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`
	AuthSecret   string   `mapstructure:"AUTH_SECRET"`
	OTLPEndpoint string   `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "production")
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", "1421")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:1420,tauri://localhost")

	v.BindEnv("ENV")
	v.BindEnv("HOST")
	v.BindEnv("PORT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DATA_DIR")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// A missing .env is normal outside development.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Addr is the listen address for the HTTP API.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(c.AuthSecret))
	}
	return nil
}

// ResolveDatabaseURL returns the location of the database.
//
// In development the location comes from DATABASE_URL and is required. In
// production it is <data dir>/data-collector/db.sqlite, where the data dir is
// DATA_DIR or the per-user application data directory. A postgres:// URL in
// DATABASE_URL is honoured in both modes.
func (c *Config) ResolveDatabaseURL() (string, error) {
	if IsPostgresURL(c.DatabaseURL) {
		return c.DatabaseURL, nil
	}

	if c.IsDev() {
		if c.DatabaseURL == "" {
			return "", fmt.Errorf("DATABASE_URL is required in development")
		}
		return c.DatabaseURL, nil
	}

	base := c.DataDir
	if base == "" {
		dir, err := userDataDir()
		if err != nil {
			return "", fmt.Errorf("resolve app data dir: %w", err)
		}
		base = dir
	}
	return filepath.Join(base, AppDirName, DBFileName), nil
}

// userDataDir returns the per-user application data directory. On Windows
// and macOS this is os.UserConfigDir; elsewhere it follows the XDG base
// directory layout ($XDG_DATA_HOME, else ~/.local/share).
func userDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows", "darwin", "ios":
		return os.UserConfigDir()
	}
	if dir := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// IsPostgresURL reports whether url selects the PostgreSQL backend.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

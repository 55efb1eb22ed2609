package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration that cannot reach a server.
var ErrInvalidConfig = errors.New("invalid config")

// Config defines client and server configuration.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Auth      AuthConfig      `yaml:"auth"`
	Query     QueryConfig     `yaml:"query"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// RemoteConfig locates the analytics server and the project/model to work on.
type RemoteConfig struct {
	URL              string        `yaml:"url"`
	DesignCenterPort string        `yaml:"design_center_port"`
	EnginePort       string        `yaml:"engine_port"`
	Organization     string        `yaml:"organization"`
	ProjectID        string        `yaml:"project_id"`
	ModelID          string        `yaml:"model_id"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type QueryConfig struct {
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// WarehouseConfig configures the embedded SQLite connector. An empty path disables it.
type WarehouseConfig struct {
	Path         string `yaml:"path"`
	ConnectionID string `yaml:"connection_id"`
	Schema       string `yaml:"schema"`
	Database     string `yaml:"database"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Token is the bearer token HTTP clients must present. Empty disables auth.
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used before the file and environment are applied.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			DesignCenterPort: "10500",
			EnginePort:       "10502",
			RequestTimeout:   60 * time.Second,
		},
		Query: QueryConfig{
			TimeoutMinutes: 2,
		},
		Transport: TransportConfig{
			Mode: "stdio",
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CUBELINK_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"CUBELINK_SERVER_URL":              &cfg.Remote.URL,
		"CUBELINK_DESIGN_CENTER_PORT":      &cfg.Remote.DesignCenterPort,
		"CUBELINK_ENGINE_PORT":             &cfg.Remote.EnginePort,
		"CUBELINK_ORGANIZATION":            &cfg.Remote.Organization,
		"CUBELINK_PROJECT_ID":              &cfg.Remote.ProjectID,
		"CUBELINK_MODEL_ID":                &cfg.Remote.ModelID,
		"CUBELINK_TOKEN":                   &cfg.Auth.Token,
		"CUBELINK_USERNAME":                &cfg.Auth.Username,
		"CUBELINK_PASSWORD":                &cfg.Auth.Password,
		"CUBELINK_WAREHOUSE_PATH":          &cfg.Warehouse.Path,
		"CUBELINK_WAREHOUSE_CONNECTION_ID": &cfg.Warehouse.ConnectionID,
		"CUBELINK_WAREHOUSE_SCHEMA":        &cfg.Warehouse.Schema,
		"CUBELINK_WAREHOUSE_DATABASE":      &cfg.Warehouse.Database,
		"CUBELINK_TRANSPORT":               &cfg.Transport.Mode,
		"CUBELINK_HTTP_HOST":               &cfg.Transport.Host,
		"CUBELINK_HTTP_TOKEN":              &cfg.Transport.Token,
		"CUBELINK_LOG_LEVEL":               &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CUBELINK_HTTP_PORT":             &cfg.Transport.Port,
		"CUBELINK_QUERY_TIMEOUT_MINUTES": &cfg.Query.TimeoutMinutes,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := getenv("CUBELINK_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CUBELINK_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Remote.RequestTimeout = d
	}
	return nil
}

// Validate reports whether the configuration identifies a server, a model and a way to authenticate.
func (c Config) Validate() error {
	missing := []string{}
	if c.Remote.URL == "" {
		missing = append(missing, "remote.url")
	}
	if c.Remote.Organization == "" {
		missing = append(missing, "remote.organization")
	}
	if c.Remote.ProjectID == "" {
		missing = append(missing, "remote.project_id")
	}
	if c.Remote.ModelID == "" {
		missing = append(missing, "remote.model_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if c.Auth.Token == "" && (c.Auth.Username == "" || c.Auth.Password == "") {
		return fmt.Errorf("%w: need a token or a username and password", ErrInvalidConfig)
	}
	if c.Query.TimeoutMinutes <= 0 {
		return fmt.Errorf("%w: query.timeout_minutes must be positive", ErrInvalidConfig)
	}
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport.Mode)
	}
	return nil
}

// LogLevel parses the configured level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

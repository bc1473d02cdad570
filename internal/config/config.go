// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"restaurant-gateway/internal/auth"
	"restaurant-gateway/internal/route"
)

// DefaultBackendURL is used when neither the config file, the CLI nor
// BACKEND_URL names a backend. It matches the local development setup.
const DefaultBackendURL = "http://localhost:8000"

// EnvProduction hides debug fields from error responses.
const EnvProduction = "production"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/restaurant-gateway/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string `kong:"help='Backend base URL (overrides config).',env='BACKEND_URL'"`
	Env        string `kong:"help='Environment: production|development (overrides config).',env='APP_ENV'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	App      AppConfig      `toml:"app"`
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Routes   route.Table    `toml:"routes"`

	filePath string // resolved config file path (unexported)
}

// AppConfig holds deployment-wide settings.
type AppConfig struct {
	Environment string `toml:"environment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
	CORS         CORSConfig      `toml:"cors"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CORSConfig lists browser origins allowed to call the gateway cross-site.
// Empty disables CORS handling.
type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins"`
}

// UpstreamConfig holds backend connection settings.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	PathPrefix      string `toml:"path_prefix"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// AuthConfig holds credential extraction settings.
type AuthConfig struct {
	CookieName string `toml:"cookie_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/restaurant-gateway/config.toml then configs/config.toml. Without a
// file the gateway runs on defaults, with metrics enabled.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	} else {
		cfg.Metrics.Enabled = true
	}

	cfg.applyCLI(cli)
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBackendURL
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = route.Defaults()
	} else {
		for i := range cfg.Routes {
			cfg.Routes[i].Normalize()
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Upstream.BaseURL = cli.BackendURL
	}
	if cli.Env != "" {
		c.App.Environment = cli.Env
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.App.Environment) {
	case "production", "development", "":
		// valid
	default:
		return fmt.Errorf("app.environment must be one of: production, development; got %q", c.App.Environment)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url must use http or https; got %q", c.Upstream.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.base_url has no host; got %q", c.Upstream.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL)
	}
	if p := c.Upstream.PathPrefix; p != "" && p[0] != '/' {
		return fmt.Errorf("upstream.path_prefix must start with '/'; got %q", p)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	for _, o := range c.Server.CORS.AllowOrigins {
		if o == "*" {
			return fmt.Errorf("server.cors.allow_origins must list explicit origins; credentials are sent cross-site")
		}
	}

	if strings.ContainsAny(c.Auth.CookieName, " ;,=\t") {
		return fmt.Errorf("auth.cookie_name is not a valid cookie name; got %q", c.Auth.CookieName)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if err := c.Routes.Validate(); err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	for _, r := range c.Routes {
		for _, fixed := range c.fixedPaths() {
			if r.Path == fixed {
				return fmt.Errorf("routes: route %s path %q is served by the gateway itself", r.Name, r.Path)
			}
		}
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.metricsPath()
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range c.reservedPaths() {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// fixedPaths are the gateway's own endpoints, which routes must not shadow.
func (c *Config) fixedPaths() []string {
	out := []string{"/healthz", "/gateway/status"}
	if c.Metrics.Enabled {
		out = append(out, c.metricsPath())
	}
	return out
}

func (c *Config) metricsPath() string {
	if c.Metrics.Path == "" {
		return "/metrics"
	}
	return c.Metrics.Path
}

func (c *Config) reservedPaths() []string {
	out := []string{"/api", "/healthz", "/gateway/status"}
	for _, r := range c.Routes {
		out = append(out, r.Path)
	}
	return out
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = EnvProduction
	}
	c.App.Environment = strings.ToLower(c.App.Environment)
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Upstream.PathPrefix == "" {
		c.Upstream.PathPrefix = "/api/v1"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 10
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = auth.DefaultCookieName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Production reports whether debug detail must be kept out of responses.
func (c *Config) Production() bool {
	return c.App.Environment != "development"
}

// UpstreamTimeout returns the per-call upstream timeout.
func (c *UpstreamConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// Package config loads, validates and hot-swaps the proxy configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	AuthModeServicePrincipal = "servicePrincipal"
	AuthModeManagedIdentity  = "managedIdentity"
	AuthModeDefault          = "default"
	AuthModeStatic           = "static"
	AuthModeNone             = "none"

	DefaultScope = "https://cognitiveservices.azure.com/.default"

	defaultHost        = "0.0.0.0"
	defaultPort        = 3000
	defaultMetricsPath = "/metrics"
	defaultLedgerPath  = "data/usage.db"
)

// Config is the whole file. A loaded Config is never mutated; reloads build a new one.
type Config struct {
	Server    ServerConfig `yaml:"server" json:"server"`
	Auth      AuthConfig   `yaml:"auth" json:"auth"`
	APIKeys   []APIKey     `yaml:"apiKeys" json:"apiKeys"`
	Upstreams []Upstream   `yaml:"upstreams" json:"upstreams"`
	Models    []Model      `yaml:"models" json:"models"`
}

type ServerConfig struct {
	Host        string         `yaml:"host" json:"host"`
	Port        int            `yaml:"port" json:"port"`
	AdminKey    string         `yaml:"adminKey" json:"adminKey,omitempty"`
	Upstream    UpstreamPolicy `yaml:"upstream" json:"upstream"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
	UsageLedger LedgerConfig   `yaml:"usageLedger" json:"usageLedger"`
}

// UpstreamPolicy holds the raw reliability knobs. Nil means "use the default".
type UpstreamPolicy struct {
	ConnectTimeoutMs   *int     `yaml:"connectTimeoutMs" json:"connectTimeoutMs,omitempty"`
	RequestTimeoutMs   *int     `yaml:"requestTimeoutMs" json:"requestTimeoutMs,omitempty"`
	FirstByteTimeoutMs *int     `yaml:"firstByteTimeoutMs" json:"firstByteTimeoutMs,omitempty"`
	IdleTimeoutMs      *int     `yaml:"idleTimeoutMs" json:"idleTimeoutMs,omitempty"`
	MaxRetries         *int     `yaml:"maxRetries" json:"maxRetries,omitempty"`
	RetryBaseMs        *int     `yaml:"retryBaseMs" json:"retryBaseMs,omitempty"`
	RetryMaxMs         *int     `yaml:"retryMaxMs" json:"retryMaxMs,omitempty"`
	RetryJitter        *float64 `yaml:"retryJitter" json:"retryJitter,omitempty"`
	RetryStatuses      []int    `yaml:"retryStatuses" json:"retryStatuses,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type AuthConfig struct {
	Mode                    string `yaml:"mode" json:"mode"`
	TenantID                string `yaml:"tenantId" json:"tenantId,omitempty"`
	ClientID                string `yaml:"clientId" json:"clientId,omitempty"`
	ClientSecret            string `yaml:"clientSecret" json:"-"`
	ManagedIdentityClientID string `yaml:"managedIdentityClientId" json:"managedIdentityClientId,omitempty"`
	Scope                   string `yaml:"scope" json:"scope"`
	Token                   string `yaml:"token" json:"-"`
	AuthorityHost           string `yaml:"authorityHost" json:"authorityHost,omitempty"`
}

type APIKey struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Key    string `yaml:"key" json:"-"`
	Status string `yaml:"status" json:"status"`
}

// Active reports whether the key may authenticate callers.
func (k APIKey) Active() bool {
	return k.Key != "" && !strings.EqualFold(strings.TrimSpace(k.Status), "disabled")
}

// Upstream is a backend base URL plus its route-key -> path template table.
type Upstream struct {
	Name    string            `yaml:"name" json:"name"`
	BaseURL string            `yaml:"baseUrl" json:"baseUrl"`
	Routes  map[string]string `yaml:"routes" json:"routes"`
}

// Model binds a client-facing model id to an upstream.
type Model struct {
	ID          string            `yaml:"id" json:"id"`
	Upstream    string            `yaml:"upstream" json:"upstream"`
	TargetModel string            `yaml:"targetModel" json:"targetModel,omitempty"`
	Routes      map[string]string `yaml:"routes" json:"routes,omitempty"`
}

// Deployment is the backend-side name substituted into path templates.
func (m Model) Deployment() string {
	if d := strings.TrimSpace(m.TargetModel); d != "" {
		return d
	}
	return m.ID
}

// ValidationError lists every problem found in a config file.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Parse decodes YAML (or JSON) bytes, applies env overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath returns the explicit path if given, then NEXUS_CONFIG, then the first existing candidate.
func ResolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("NEXUS_CONFIG"))
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/config.yaml",
		"config/config.json",
		"/etc/aoai-nexus/config.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "aoai-nexus", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (set NEXUS_CONFIG or -config)")
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NEXUS_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NEXUS_AUTH_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("NEXUS_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.Metrics.Path == "" {
		cfg.Server.Metrics.Path = defaultMetricsPath
	}
	if cfg.Server.UsageLedger.Path == "" {
		cfg.Server.UsageLedger.Path = defaultLedgerPath
	}
	if strings.TrimSpace(cfg.Auth.Mode) == "" {
		cfg.Auth.Mode = AuthModeServicePrincipal
	}
	if strings.TrimSpace(cfg.Auth.Scope) == "" {
		cfg.Auth.Scope = DefaultScope
	}
}

// Validate collects all configuration problems into a single ValidationError.
func Validate(cfg *Config) error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port %d out of range", cfg.Server.Port)
	}
	p := cfg.Server.Upstream
	for name, v := range map[string]*int{
		"connectTimeoutMs":   p.ConnectTimeoutMs,
		"requestTimeoutMs":   p.RequestTimeoutMs,
		"firstByteTimeoutMs": p.FirstByteTimeoutMs,
		"idleTimeoutMs":      p.IdleTimeoutMs,
		"maxRetries":         p.MaxRetries,
		"retryBaseMs":        p.RetryBaseMs,
		"retryMaxMs":         p.RetryMaxMs,
	} {
		if v != nil && *v < 0 {
			add("server.upstream.%s must be >= 0", name)
		}
	}
	if p.RetryJitter != nil && (*p.RetryJitter < 0 || *p.RetryJitter > 1) {
		add("server.upstream.retryJitter must be within [0,1]")
	}
	for _, status := range p.RetryStatuses {
		if status < 100 || status > 599 {
			add("server.upstream.retryStatuses contains invalid status %d", status)
		}
	}

	switch cfg.Auth.Mode {
	case AuthModeServicePrincipal:
		if cfg.Auth.TenantID == "" || cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" {
			add("auth.mode servicePrincipal requires tenantId, clientId and clientSecret")
		}
	case AuthModeStatic:
		if cfg.Auth.Token == "" {
			add("auth.mode static requires token")
		}
	case AuthModeManagedIdentity, AuthModeDefault, AuthModeNone:
	default:
		add("auth.mode %q is not supported", cfg.Auth.Mode)
	}

	upstreamNames := make(map[string]struct{}, len(cfg.Upstreams))
	for i, u := range cfg.Upstreams {
		if strings.TrimSpace(u.Name) == "" {
			add("upstreams[%d].name is required", i)
		} else if _, dup := upstreamNames[u.Name]; dup {
			add("upstreams[%d].name %q is duplicated", i, u.Name)
		}
		upstreamNames[u.Name] = struct{}{}

		parsed, err := url.Parse(u.BaseURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			add("upstreams[%d].baseUrl %q must be an http(s) URL", i, u.BaseURL)
		}
		for key, template := range u.Routes {
			if strings.TrimSpace(template) == "" {
				add("upstreams[%d].routes[%s] must be a non-empty string", i, key)
			}
		}
	}

	modelIDs := make(map[string]struct{}, len(cfg.Models))
	for i, m := range cfg.Models {
		if strings.TrimSpace(m.ID) == "" {
			add("models[%d].id is required", i)
		} else if _, dup := modelIDs[m.ID]; dup {
			add("models[%d].id %q is duplicated", i, m.ID)
		}
		modelIDs[m.ID] = struct{}{}
		if strings.TrimSpace(m.Upstream) == "" {
			add("models[%d].upstream is required", i)
		}
		for key, route := range m.Routes {
			if strings.TrimSpace(route) == "" {
				add("models[%d].routes[%s] must be a non-empty string", i, key)
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

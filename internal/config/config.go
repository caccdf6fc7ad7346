package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jacksonlee411/authhooks/pkg/authz"
)

// Config is the console server and config stub configuration.
// Values are layered: Default() < YAML file < environment.
type Config struct {
	ListenAddr    string `yaml:"listen_addr" env:"AUTHHOOKS_LISTEN_ADDR"`
	LogLevel      string `yaml:"log_level" env:"AUTHHOOKS_LOG_LEVEL"`
	AllowlistPath string `yaml:"allowlist_path" env:"AUTHHOOKS_ALLOWLIST_PATH"`

	Kratos   KratosConfig   `yaml:"kratos"`
	GoTrue   GoTrueConfig   `yaml:"gotrue"`
	Token    TokenConfig    `yaml:"token"`
	Authz    AuthzConfig    `yaml:"authz"`
	Cache    CacheConfig    `yaml:"cache"`
	Sessions SessionsConfig `yaml:"sessions"`
	OTel     OTelConfig     `yaml:"otel"`
	Stub     StubConfig     `yaml:"stub"`
}

type KratosConfig struct {
	PublicURL string `yaml:"public_url" env:"KRATOS_PUBLIC_URL"`
}

type GoTrueConfig struct {
	BaseURL string        `yaml:"base_url" env:"AUTHHOOKS_GOTRUE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"AUTHHOOKS_GOTRUE_TIMEOUT"`
}

// TokenConfig describes the management API bearer tokens minted by the console
// and verified by the config stub.
type TokenConfig struct {
	Secret   string        `yaml:"secret" env:"AUTHHOOKS_TOKEN_SECRET"`
	Issuer   string        `yaml:"issuer" env:"AUTHHOOKS_TOKEN_ISSUER"`
	Audience string        `yaml:"audience" env:"AUTHHOOKS_TOKEN_AUDIENCE"`
	Subject  string        `yaml:"subject" env:"AUTHHOOKS_TOKEN_SUBJECT"`
	TTL      time.Duration `yaml:"ttl" env:"AUTHHOOKS_TOKEN_TTL"`
}

type AuthzConfig struct {
	Engine        string `yaml:"engine" env:"AUTHZ_ENGINE"`
	Mode          string `yaml:"mode" env:"AUTHZ_MODE"`
	AllowDisabled bool   `yaml:"unsafe_allow_disabled" env:"AUTHZ_UNSAFE_ALLOW_DISABLED"`
	ModelPath     string `yaml:"model_path" env:"AUTHZ_MODEL_PATH"`
	PolicyPath    string `yaml:"policy_path" env:"AUTHZ_POLICY_PATH"`
	RegoPath      string `yaml:"rego_path" env:"AUTHZ_REGO_PATH"`
	RegoQuery     string `yaml:"rego_query" env:"AUTHZ_REGO_QUERY"`
}

const (
	EngineCasbin = "casbin"
	EngineRego   = "rego"
)

type CacheConfig struct {
	Backend  string        `yaml:"backend" env:"AUTHHOOKS_CACHE_BACKEND"`
	TTL      time.Duration `yaml:"ttl" env:"AUTHHOOKS_CACHE_TTL"`
	RedisURL string        `yaml:"redis_url" env:"AUTHHOOKS_REDIS_URL"`
}

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type SessionsConfig struct {
	IdleTTL           time.Duration `yaml:"idle_ttl" env:"AUTHHOOKS_SESSION_IDLE_TTL"`
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"AUTHHOOKS_SESSION_SWEEP_INTERVAL"`
	ChangedFieldsOnly bool          `yaml:"changed_fields_only" env:"AUTHHOOKS_SUBMIT_CHANGED_ONLY"`
	FlashLimit        int           `yaml:"flash_limit" env:"AUTHHOOKS_FLASH_LIMIT"`
}

type OTelConfig struct {
	Enabled     bool   `yaml:"enabled" env:"AUTHHOOKS_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"AUTHHOOKS_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"AUTHHOOKS_OTEL_SERVICE_NAME"`
}

// StubConfig configures cmd/configstub. Projects are created empty at
// startup; identities are "token:role:email" entries served by whoami.
type StubConfig struct {
	ListenAddr  string   `yaml:"listen_addr" env:"CONFIGSTUB_LISTEN_ADDR"`
	DatabaseURL string   `yaml:"database_url" env:"CONFIGSTUB_DATABASE_URL"`
	Projects    []string `yaml:"projects" env:"CONFIGSTUB_PROJECTS" envSeparator:","`
	Identities  []string `yaml:"identities" env:"CONFIGSTUB_IDENTITIES" envSeparator:","`
}

func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		LogLevel:      "info",
		AllowlistPath: "config/routing/allowlist.yaml",
		Kratos:        KratosConfig{PublicURL: "http://127.0.0.1:4433"},
		GoTrue:        GoTrueConfig{BaseURL: "http://127.0.0.1:8081", Timeout: 10 * time.Second},
		Token: TokenConfig{
			Issuer:   "authhooks-console",
			Audience: "management-api",
			Subject:  "authhooks-console",
			TTL:      5 * time.Minute,
		},
		Authz:    AuthzConfig{Engine: EngineCasbin, Mode: string(authz.ModeEnforce)},
		Cache:    CacheConfig{Backend: CacheMemory, TTL: 30 * time.Second},
		Sessions: SessionsConfig{IdleTTL: 30 * time.Minute, SweepInterval: time.Minute, FlashLimit: 20},
		OTel:     OTelConfig{ServiceName: "authhooks"},
		Stub:     StubConfig{ListenAddr: ":8081"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// AuthzMode resolves the configured authorization mode.
func (c Config) AuthzMode() (authz.Mode, error) {
	return authz.ParseMode(c.Authz.Mode, c.Authz.AllowDisabled)
}

// Validate checks the settings the console server needs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if err := checkHTTPURL("gotrue.base_url", c.GoTrue.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := checkHTTPURL("kratos.public_url", c.Kratos.PublicURL); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Token.Secret) == "" {
		errs = append(errs, errors.New("token.secret is required"))
	}
	if _, err := c.AuthzMode(); err != nil {
		errs = append(errs, err)
	}
	switch c.Authz.Engine {
	case EngineCasbin, EngineRego:
	default:
		errs = append(errs, fmt.Errorf("authz.engine %q is not one of casbin, rego", c.Authz.Engine))
	}
	if (c.Authz.ModelPath == "") != (c.Authz.PolicyPath == "") {
		errs = append(errs, errors.New("authz.model_path and authz.policy_path must be set together"))
	}
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend))
	}
	if c.Cache.Backend != CacheNone && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Sessions.IdleTTL > 0 && c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive when idle_ttl is set"))
	}
	if c.OTel.Enabled && strings.TrimSpace(c.OTel.Endpoint) == "" {
		errs = append(errs, errors.New("otel.endpoint is required when otel is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateStub checks the settings cmd/configstub needs.
func (c Config) ValidateStub() error {
	var errs []error
	if strings.TrimSpace(c.Stub.ListenAddr) == "" {
		errs = append(errs, errors.New("stub.listen_addr is required"))
	}
	if strings.TrimSpace(c.Token.Secret) == "" {
		errs = append(errs, errors.New("token.secret is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func checkHTTPURL(name string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) url", name)
	}
	return nil
}

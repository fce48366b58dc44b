// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package config

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modelsmith-dev/modelsmith/internal/secrets"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g.
// MODELSMITH_NETWORKING_LISTEN.
const EnvPrefix = "MODELSMITH"

// Config is the top-level modelsmith configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Repository RepositoryConfig          `mapstructure:"repository"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Models     ModelsConfig              `mapstructure:"models"`
	Generation GenerationConfig          `mapstructure:"generation"`
	Lint       LintConfig                `mapstructure:"lint"`
	Guard      GuardConfig               `mapstructure:"guard"`
	Storage    StorageConfig             `mapstructure:"storage"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// AuthConfig lists the bearer tokens the server accepts. No tokens means
// the server is unauthenticated.
type AuthConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig is one static API token.
type TokenConfig struct {
	Token string `mapstructure:"token"`
	// Name identifies the caller in logs.
	Name string `mapstructure:"name"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RepositoryConfig selects the hosting backend and the repository it serves.
type RepositoryConfig struct {
	Host    string `mapstructure:"host"`
	Owner   string `mapstructure:"owner"`
	Name    string `mapstructure:"name"`
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
	// LocalPath is the repository directory for the local host.
	LocalPath     string `mapstructure:"local_path"`
	DefaultBranch string `mapstructure:"default_branch"`
	ModelsRoot    string `mapstructure:"models_root"`
	BranchPrefix  string `mapstructure:"branch_prefix"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model selection.
type ModelsConfig struct {
	Default     string   `mapstructure:"default"`
	Failover    []string `mapstructure:"failover"`
	Temperature float64  `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

// GenerationConfig bounds retries of rate-limited provider calls.
type GenerationConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

type LintConfig struct {
	Fixer   string        `mapstructure:"fixer"`
	Command string        `mapstructure:"command"`
	Dialect string        `mapstructure:"dialect"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GuardConfig controls the credential check on generated files: block
// refuses the edit, flag commits it with a warning, off skips the check.
type GuardConfig struct {
	Mode string `mapstructure:"mode"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// KnownProviders are the providers with built-in adapters.
var KnownProviders = []string{"anthropic", "google", "openai", "openrouter"}

// vendorEnv are the conventional variables each SDK reads, accepted after
// the MODELSMITH_ form.
var vendorEnv = map[string][]string{
	"providers.anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"providers.openai.api_key":     {"OPENAI_API_KEY"},
	"providers.google.api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"providers.openrouter.api_key": {"OPENROUTER_API_KEY"},
	"repository.token":             {"GITHUB_TOKEN"},
}

// SetDefaults registers every default. Keys without a default are still
// registered so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8000")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_rps", 5.0)
	v.SetDefault("networking.rate_limit_burst", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("repository.host", "github")
	v.SetDefault("repository.owner", "")
	v.SetDefault("repository.name", "")
	v.SetDefault("repository.token", "")
	v.SetDefault("repository.base_url", "")
	v.SetDefault("repository.local_path", "")
	v.SetDefault("repository.default_branch", "")
	v.SetDefault("repository.models_root", "models")
	v.SetDefault("repository.branch_prefix", "modelsmith/")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("models.temperature", 0.0)
	v.SetDefault("models.max_tokens", 8192)
	v.SetDefault("generation.max_attempts", 4)
	v.SetDefault("generation.backoff_base", 500*time.Millisecond)
	v.SetDefault("generation.backoff_cap", 8*time.Second)
	v.SetDefault("lint.fixer", "sqlfluff")
	v.SetDefault("lint.command", "sqlfluff")
	v.SetDefault("lint.dialect", "ansi")
	v.SetDefault("lint.timeout", 30*time.Second)
	v.SetDefault("guard.mode", "block")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
}

// SetupEnv enables MODELSMITH_ overrides and the vendor variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, p := range KnownProviders {
		for _, field := range []string{"api_key", "endpoint"} {
			key := "providers." + p + "." + field
			names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, vendorEnv[key]...)
			_ = v.BindEnv(append([]string{key}, names...)...)
		}
	}
	_ = v.BindEnv(append([]string{"repository.token", EnvPrefix + "_REPOSITORY_TOKEN"}, vendorEnv["repository.token"]...)...)
}

// FromViper resolves keyring references in v, then decodes and validates.
func FromViper(v *viper.Viper, lookup secrets.Lookup) (*Config, error) {
	if lookup != nil {
		if err := secrets.ResolveViper(v, lookup); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mserr.Errorf(mserr.CodeConfigParseInvalidFormat, "decoding config: %w", err)
	}
	cfg.dropEmptyProviders()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Load reads path (or only defaults and environment when empty) with
// keyring references resolved against the OS keyring.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		if _, err := ReadInConfig(v, path); err != nil {
			return nil, err
		}
	}
	return FromViper(v, secrets.KeyringLookup)
}

// dropEmptyProviders removes entries materialized only by unset env bindings.
func (c *Config) dropEmptyProviders() {
	for name, pc := range c.Providers {
		if pc == (ProviderConfig{}) {
			delete(c.Providers, name)
		}
	}
}

// Validate checks the configuration for logical errors, collecting all of
// them rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateRepository()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateLint()...)
	if err := oneOf("guard.mode", c.Guard.Mode, "block", "flag", "off"); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.validateStorage()...)
	return errs
}

func invalid(format string, args ...any) error {
	return mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func oneOf(field, got string, allowed ...string) error {
	if slices.Contains(allowed, got) {
		return nil
	}
	return invalid("%s must be one of [%s], got %q", field, strings.Join(allowed, ", "), got)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a host:port address, got %q: %w", c.Networking.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be a number between 1 and 65535, got %q", portStr))
	}

	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	}
	if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst < 1 {
		errs = append(errs, invalid("networking.rate_limit_burst must be at least 1 when rate limiting is on, got %d", c.Networking.RateLimitBurst))
	}
	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error
	seen := make(map[string]bool, len(c.Auth.Tokens))
	for i, tc := range c.Auth.Tokens {
		switch {
		case tc.Token == "":
			errs = append(errs, invalid("auth.tokens[%d].token must not be empty", i))
		case seen[tc.Token]:
			errs = append(errs, invalid("auth.tokens[%d] duplicates an earlier token", i))
		}
		seen[tc.Token] = true
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("logging.format", c.Logging.Format, "text", "json"); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (c *Config) validateRepository() []error {
	var errs []error
	r := c.Repository

	switch r.Host {
	case "github":
		if r.Owner == "" || r.Name == "" {
			errs = append(errs, invalid("repository.owner and repository.name are required for the github host"))
		}
		if r.Token == "" {
			errs = append(errs, invalid("repository.token is required for the github host (set GITHUB_TOKEN or a keyring:// reference)"))
		}
	case "local":
		if r.LocalPath == "" {
			errs = append(errs, invalid("repository.local_path is required for the local host"))
		}
	default:
		errs = append(errs, oneOf("repository.host", r.Host, "github", "local"))
	}

	if r.BranchPrefix == "" {
		errs = append(errs, invalid("repository.branch_prefix must not be empty"))
	} else if strings.ContainsAny(r.BranchPrefix, " ~^:?*[\\") || strings.Contains(r.BranchPrefix, "..") {
		errs = append(errs, invalid("repository.branch_prefix %q is not a valid git ref prefix", r.BranchPrefix))
	}
	if strings.Contains(r.ModelsRoot, "..") {
		errs = append(errs, invalid("repository.models_root must stay inside the repository, got %q", r.ModelsRoot))
	}
	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	check := func(field, ref string) {
		name, _, ok := strings.Cut(ref, "/")
		if !ok || name == "" {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			return
		}
		// Only cross-reference when a providers section exists; defaults
		// alone are valid.
		if len(c.Providers) > 0 {
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", field, ref, name))
			}
		}
	}

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else {
		check("models.default", c.Models.Default)
	}
	for i, ref := range c.Models.Failover {
		check("models.failover["+strconv.Itoa(i)+"]", ref)
	}

	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, invalid("models.temperature must be between 0 and 2, got %g", c.Models.Temperature))
	}
	if c.Models.MaxTokens <= 0 {
		errs = append(errs, invalid("models.max_tokens must be greater than 0, got %d", c.Models.MaxTokens))
	}
	return errs
}

func (c *Config) validateGeneration() []error {
	var errs []error
	g := c.Generation
	if g.MaxAttempts < 1 {
		errs = append(errs, invalid("generation.max_attempts must be at least 1, got %d", g.MaxAttempts))
	}
	if g.BackoffBase <= 0 {
		errs = append(errs, invalid("generation.backoff_base must be positive, got %s", g.BackoffBase))
	}
	if g.BackoffCap < g.BackoffBase {
		errs = append(errs, invalid("generation.backoff_cap (%s) must not be below backoff_base (%s)", g.BackoffCap, g.BackoffBase))
	}
	return errs
}

func (c *Config) validateLint() []error {
	var errs []error
	if err := oneOf("lint.fixer", c.Lint.Fixer, "sqlfluff", "none"); err != nil {
		errs = append(errs, err)
	}
	if c.Lint.Fixer == "sqlfluff" && c.Lint.Timeout <= 0 {
		errs = append(errs, invalid("lint.timeout must be positive, got %s", c.Lint.Timeout))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	if err := oneOf("storage.backend", c.Storage.Backend, "memory", "sqlite"); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, invalid("storage.path is required for the sqlite backend"))
	}
	return errs
}

// ProviderFromModel returns the provider part of a "provider/model" ref.
func ProviderFromModel(ref string) string {
	name, _, _ := strings.Cut(ref, "/")
	return name
}

// ReadInConfig reads path into v, or the first modelsmith.yaml found on
// SearchPaths when path is empty. Finding no file is not an error; the
// returned path is then empty.
func ReadInConfig(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// No SetConfigType: with it viper also tries the bare name, which
		// matches a ./modelsmith binary.
		v.SetConfigName("modelsmith")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", mserr.Errorf(mserr.CodeConfigLoadReadFailure, "reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

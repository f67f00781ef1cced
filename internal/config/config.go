package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/delta"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/gateway"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/logging"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/validate"
)

// #region types
// Config is the full service configuration.
type Config struct {
	Server      ServerConfig                 `yaml:"server"`
	Storage     StorageConfig                `yaml:"storage"`
	Model       ModelConfig                  `yaml:"model"`
	Gateway     GatewayConfig                `yaml:"gateway"`
	Log         logging.Config               `yaml:"log"`
	Validation  ValidationConfig             `yaml:"validation"`
	Delta       delta.Config                 `yaml:"delta"`
	GenderRules map[string]params.GenderRule `yaml:"gender_rules"`
	Replay      ReplayConfig                 `yaml:"replay"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" validate:"min=1"`
}

// StorageConfig names the SQLite files. An empty AuditDB disables the refinement log.
type StorageConfig struct {
	BoundsDB string `yaml:"bounds_db" validate:"required"`
	AuditDB  string `yaml:"audit_db"`
}

// ModelConfig selects the model backend. APIKey is only read from the environment.
type ModelConfig struct {
	Provider        string  `yaml:"provider" validate:"oneof=genai openai"`
	Name            string  `yaml:"name"`
	BaseURL         string  `yaml:"base_url" validate:"omitempty,url"`
	Temperature     float64 `yaml:"temperature" validate:"min=0,max=2"`
	MaxOutputTokens int     `yaml:"max_output_tokens" validate:"min=0"`
	APIKey          string  `yaml:"-"`
}

type GatewayConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries" validate:"min=0,max=10"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     float64       `yaml:"jitter" validate:"min=0,max=1"`
}

type ValidationConfig struct {
	EnvelopeEpsilon float64             `yaml:"envelope_epsilon" validate:"gt=0"`
	Rules           validate.RuleConfig `yaml:"rules"`
}

type ReplayConfig struct {
	Concurrency int `yaml:"concurrency" validate:"min=1"`
}

// #endregion types

// #region defaults
// Default returns a configuration that runs locally against the Gemini API.
func Default() Config {
	retry := gateway.DefaultRetryPolicy()
	rules := map[string]params.GenderRule{}
	for g, r := range params.DefaultGenderRules() {
		rules[string(g)] = r
	}
	return Config{
		Server:  ServerConfig{Addr: ":8080", MaxBodyBytes: 4 << 20},
		Storage: StorageConfig{BoundsDB: "bounds.db", AuditDB: "refinements.db"},
		Model: ModelConfig{
			Provider:    "genai",
			Name:        gateway.DefaultGenAIModel,
			Temperature: 0.1,
		},
		Gateway: GatewayConfig{
			Timeout:    gateway.DefaultOptions().Timeout,
			MaxRetries: retry.MaxRetries,
			BaseDelay:  retry.BaseDelay,
			MaxDelay:   retry.MaxDelay,
			Jitter:     retry.Jitter,
		},
		Log:         logging.DefaultConfig(),
		Validation:  ValidationConfig{EnvelopeEpsilon: validate.DefaultConfig().EnvelopeEpsilon, Rules: validate.DefaultRuleConfig()},
		Delta:       delta.DefaultConfig(),
		GenderRules: rules,
		Replay:      ReplayConfig{Concurrency: 4},
	}
}

// #endregion defaults

// #region load
// Load reads path over the defaults, applies environment overrides and validates.
// An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from REFINER_* variables and the provider API keys.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("REFINER_ADDR", &c.Server.Addr)
	str("REFINER_BOUNDS_DB", &c.Storage.BoundsDB)
	str("REFINER_AUDIT_DB", &c.Storage.AuditDB)
	str("REFINER_MODEL_PROVIDER", &c.Model.Provider)
	str("REFINER_MODEL", &c.Model.Name)
	str("REFINER_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("REFINER_GATEWAY_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("REFINER_GATEWAY_TIMEOUT: %w", err)
		}
		c.Gateway.Timeout = d
	}

	switch c.Model.Provider {
	case "openai":
		str("OPENAI_API_KEY", &c.Model.APIKey)
	default:
		str("GEMINI_API_KEY", &c.Model.APIKey)
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	sec, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(sec) * time.Second, nil
}

// #endregion load

// #region validate
// Validate checks struct tags and the cross-field constraints tags cannot express.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Gateway.Timeout < 0 || c.Gateway.BaseDelay < 0 || c.Gateway.MaxDelay < c.Gateway.BaseDelay {
		return fmt.Errorf("invalid config: gateway delays must be non-negative with max_delay >= base_delay")
	}
	if _, err := c.GenderRuleSet(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey fails when the selected model has no credentials.
func (c Config) RequireAPIKey() error {
	if c.Model.APIKey == "" {
		env := "GEMINI_API_KEY"
		if c.Model.Provider == "openai" {
			env = "OPENAI_API_KEY"
		}
		return fmt.Errorf("%s is not set", env)
	}
	return nil
}

// #endregion validate

// #region accessors
// GenderRuleSet resolves the configured gender labels.
func (c Config) GenderRuleSet() (params.GenderRules, error) {
	out := params.GenderRules{}
	for label, rule := range c.GenderRules {
		g, err := params.ParseGender(label)
		if err != nil {
			return nil, fmt.Errorf("gender_rules: %w", err)
		}
		out[g] = rule
	}
	return out, nil
}

// ValidatorConfig builds the validator tolerances and rule table.
func (c Config) ValidatorConfig() validate.Config {
	return validate.Config{
		EnvelopeEpsilon: c.Validation.EnvelopeEpsilon,
		Rules:           validate.DefaultRules(c.Validation.Rules),
	}
}

// GatewayOptions builds the gateway timeout and retry policy.
func (c Config) GatewayOptions() gateway.Options {
	return gateway.Options{
		Timeout: c.Gateway.Timeout,
		Retry: gateway.RetryPolicy{
			MaxRetries: c.Gateway.MaxRetries,
			BaseDelay:  c.Gateway.BaseDelay,
			MaxDelay:   c.Gateway.MaxDelay,
			Jitter:     c.Gateway.Jitter,
		},
	}
}

// #endregion accessors

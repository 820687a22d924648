// Package config loads warden's YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/warden/internal/classify"
	"github.com/ppiankov/warden/internal/model"
	"github.com/ppiankov/warden/internal/notify"
)

// Environment overrides for secrets that should stay out of the file.
const (
	EnvModelAPIKey = "WARDEN_MODEL_API_KEY"
	EnvServerToken = "WARDEN_SERVER_TOKEN"
)

// AuditConfig locates the hash-chained audit log.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// ApprovalConfig controls the approval gate.
type ApprovalConfig struct {
	Timeout       time.Duration     `yaml:"timeout"`
	RequireLevels []model.RiskLevel `yaml:"require_levels"` // L2 is always gated
}

// ClassifierConfig controls risk classification.
type ClassifierConfig struct {
	FailureLevel model.RiskLevel       `yaml:"failure_level"`
	Model        *classify.ModelConfig `yaml:"model"`
	Rules        []classify.Rule       `yaml:"rules"`
}

// NotifyConfig lists where approval prompts are sent.
type NotifyConfig struct {
	Webhooks []notify.WebhookConfig `yaml:"webhooks"`
	Console  bool                   `yaml:"console"`
}

// ServerConfig controls the HTTP approval relay.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"` // bearer token for /v1 endpoints
}

// ExecutorConfig controls the local shell executor.
type ExecutorConfig struct {
	Shell     string        `yaml:"shell"`
	Dir       string        `yaml:"dir"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxOutput int           `yaml:"max_output"`
}

// Config is the whole configuration file.
type Config struct {
	Audit      AuditConfig      `yaml:"audit"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Notify     NotifyConfig     `yaml:"notify"`
	Server     ServerConfig     `yaml:"server"`
	Executor   ExecutorConfig   `yaml:"executor"`
}

// DefaultPath returns ~/.warden/config.yaml, or a relative fallback when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".warden", "config.yaml")
	}
	return filepath.Join(home, ".warden", "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	auditDir := filepath.Join(".warden", "audit")
	if home, err := os.UserHomeDir(); err == nil {
		auditDir = filepath.Join(home, ".warden", "audit")
	}
	return &Config{
		Audit:      AuditConfig{Dir: auditDir},
		Approval:   ApprovalConfig{Timeout: 5 * time.Minute},
		Classifier: ClassifierConfig{FailureLevel: classify.DefaultFailureLevel},
		Notify:     NotifyConfig{Console: true},
		Server:     ServerConfig{Addr: "127.0.0.1:8787"},
		Executor:   ExecutorConfig{Shell: "/bin/sh", Timeout: 2 * time.Minute, MaxOutput: 64 * 1024},
	}
}

// Load reads configuration from path. Empty path means DefaultPath.
// A missing file yields defaults; invalid YAML or values are errors.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash also returns "sha256:<hex>" of the raw file bytes, or of
// empty input when defaults were used.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}
	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvModelAPIKey); key != "" && cfg.Classifier.Model != nil {
		cfg.Classifier.Model.APIKey = key
	}
	if token := os.Getenv(EnvServerToken); token != "" {
		cfg.Server.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, hash, nil
}

// Validate checks values YAML cannot constrain.
func (c *Config) Validate() error {
	var errs []error
	if c.Audit.Dir == "" {
		errs = append(errs, errors.New("audit.dir is required"))
	}
	if c.Approval.Timeout < 0 {
		errs = append(errs, errors.New("approval.timeout must not be negative"))
	}
	for _, l := range c.Approval.RequireLevels {
		if !l.Valid() || l == model.L3 {
			errs = append(errs, fmt.Errorf("approval.require_levels: %s cannot be gated", l))
		}
	}
	if _, err := c.ClassifierConfig(); err != nil {
		errs = append(errs, err)
	}
	for i, w := range c.Notify.Webhooks {
		if _, err := notify.NewWebhook(w); err != nil {
			errs = append(errs, fmt.Errorf("notify.webhooks[%d]: %w", i, err))
		}
	}
	if c.Executor.Timeout < 0 {
		errs = append(errs, errors.New("executor.timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// ClassifierConfig compiles the classifier section.
func (c *Config) ClassifierConfig() (classify.Config, error) {
	cc := c.Classifier
	if !cc.FailureLevel.Valid() || cc.FailureLevel < model.L2 {
		return classify.Config{}, fmt.Errorf("classifier.failure_level must be L2 or L3, got %s", cc.FailureLevel)
	}
	if m := cc.Model; m != nil {
		if m.URL == "" {
			return classify.Config{}, errors.New("classifier.model.url is required")
		}
		switch m.API {
		case "", classify.APIOllama, classify.APIOpenAI:
		default:
			return classify.Config{}, fmt.Errorf("classifier.model.api: unknown api %q", m.API)
		}
		if m.Timeout < 0 || m.MaxTokens < 0 {
			return classify.Config{}, errors.New("classifier.model: timeout and max_tokens must not be negative")
		}
	}
	rules, err := classify.NewRuleSet(cc.Rules)
	if err != nil {
		return classify.Config{}, fmt.Errorf("classifier.rules: %w", err)
	}
	return classify.Config{Rules: rules, Model: cc.Model, FailureLevel: cc.FailureLevel}, nil
}

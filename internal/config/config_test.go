package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/warden/internal/classify"
	"github.com/ppiankov/warden/internal/model"
)

const sampleYAML = `
audit:
  dir: /var/lib/warden/audit
approval:
  timeout: 90s
  require_levels: [L1]
classifier:
  failure_level: L3
  model:
    url: http://127.0.0.1:11434
    api: ollama
    name: llama3.2
    timeout: 20s
  rules:
    - tool: "deploy_*"
      level: L2
      reason: deployments need sign-off
    - tool: shell
      command: '^terraform\s+apply'
      level: L2
notify:
  console: false
  webhooks:
    - url: https://hooks.example.com/warden
      format: slack
      headers:
        X-Token: abc
server:
  addr: 0.0.0.0:9000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvServerToken, "")
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "sha256:"))
	assert.Len(t, hash, len("sha256:")+64)

	assert.Equal(t, "/var/lib/warden/audit", cfg.Audit.Dir)
	assert.Equal(t, 90*time.Second, cfg.Approval.Timeout)
	assert.Equal(t, []model.RiskLevel{model.L1}, cfg.Approval.RequireLevels)
	assert.Equal(t, model.L3, cfg.Classifier.FailureLevel)
	require.NotNil(t, cfg.Classifier.Model)
	assert.Equal(t, 20*time.Second, cfg.Classifier.Model.Timeout)
	assert.Equal(t, classify.APIOllama, cfg.Classifier.Model.API)
	require.Len(t, cfg.Classifier.Rules, 2)
	assert.Equal(t, "deploy_*", cfg.Classifier.Rules[0].Tool)
	assert.Equal(t, model.L2, cfg.Classifier.Rules[1].Level)
	assert.False(t, cfg.Notify.Console)
	require.Len(t, cfg.Notify.Webhooks, 1)
	assert.Equal(t, "abc", cfg.Notify.Webhooks[0].Headers["X-Token"])
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)

	// untouched sections keep defaults
	assert.Equal(t, Default().Executor, cfg.Executor)
}

func TestClassifierConfigCompilesRules(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cc, err := cfg.ClassifierConfig()
	require.NoError(t, err)
	c, ok := cc.Rules.Classify("deploy_prod", nil)
	require.True(t, ok)
	assert.Equal(t, model.L2, c.Level)

	c, ok = cc.Rules.Classify("shell", map[string]any{"command": "terraform apply -auto-approve"})
	require.True(t, ok)
	assert.Equal(t, model.L2, c.Level)
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv(EnvModelAPIKey, "from-env")
	t.Setenv(EnvServerToken, "relay-token")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Classifier.Model.APIKey)
	assert.Equal(t, "relay-token", cfg.Server.Token)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":              "audit: [",
		"bad level":             "classifier:\n  failure_level: L7\n",
		"failure level too low": "classifier:\n  failure_level: L1\n",
		"gating L3":             "approval:\n  require_levels: [L3]\n",
		"negative timeout":      "approval:\n  timeout: -1s\n",
		"model without url":     "classifier:\n  model:\n    name: x\n",
		"unknown api":           "classifier:\n  model:\n    url: http://x\n    api: grpc\n",
		"bad rule regex":        "classifier:\n  rules:\n    - tool: shell\n      command: '('\n      level: L2\n",
		"rule without tool":     "classifier:\n  rules:\n    - level: L2\n",
		"webhook without url":   "notify:\n  webhooks:\n    - format: slack\n",
		"unknown webhook fmt":   "notify:\n  webhooks:\n    - url: http://x\n      format: teams\n",
		"empty audit dir":       "audit:\n  dir: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: 127.0.0.1:1\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config, _ string) { got <- cfg }, nil)
	require.NoError(t, err)
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:2\n"), 0600))

	select {
	case cfg := <-got:
		assert.Equal(t, "127.0.0.1:2", cfg.Server.Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherSkipsInvalidAndOtherFiles(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: 127.0.0.1:1\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config, _ string) { got <- cfg }, nil)
	require.NoError(t, err)
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("classifier:\n  failure_level: L0\n"), 0600))

	select {
	case cfg := <-got:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}

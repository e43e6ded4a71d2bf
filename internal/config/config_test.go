package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ashford.toml")

	configContent := `
[app]
port = 9090
env = "production"

[model]
provider = "bedrock"
model = "anthropic.claude-3-sonnet-20240229-v1:0"
temperature = 0.1
max_output_tokens = 2048

[policy]
approval_always = ["delete", "forward"]
confidence_default = 0.8

[gmail]
snooze_label = "Ashford/Snoozed"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, 0.8, cfg.Policy.ConfidenceDefault)
	assert.Equal(t, []string{"delete", "forward"}, cfg.Policy.ApprovalAlways)
	assert.Equal(t, "Ashford/Snoozed", cfg.Gmail.SnoozeLabel)
	// Unset sections keep their defaults.
	assert.Equal(t, 4, cfg.Worker.PoolSize)
}

func TestResolveSecret(t *testing.T) {
	os.Setenv("ASHFORD_TEST_SECRET", "s3cr3t")
	defer os.Unsetenv("ASHFORD_TEST_SECRET")

	assert.Equal(t, "s3cr3t", resolveSecret("env:ASHFORD_TEST_SECRET"))
	assert.Equal(t, "literal-value", resolveSecret("literal-value"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

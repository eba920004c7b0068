package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.MCP.ToolCacheTTL)
	assert.Equal(t, 10, cfg.World.ToolIterationLimit)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9000
storage:
  backend: file
  root_dir: /tmp/agentworld
llm:
  providers:
    openai:
      api_key: sk-test
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host, "unset fields keep defaults")
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)

	creds, ok := cfg.Credentials(models.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "sk-test", creds.APIKey)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad backend",
			yaml: "storage:\n  backend: redis\n",
		},
		{
			name: "bad port",
			yaml: "http:\n  port: -1\n",
		},
		{
			name: "postgres without host",
			yaml: "storage:\n  backend: postgres\n",
		},
		{
			name: "unknown provider",
			yaml: "llm:\n  providers:\n    mistral:\n      api_key: x\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AW_TEST_KEY", "secret")
	os.Unsetenv("AW_TEST_MISSING")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${AW_TEST_KEY}", "key: secret"},
		{"missing variable", "key: ${AW_TEST_MISSING}", "key: "},
		{"missing with default", "key: ${AW_TEST_MISSING:-fallback}", "key: fallback"},
		{"set ignores default", "key: ${AW_TEST_KEY:-fallback}", "key: secret"},
		{"plain text untouched", "key: plain", "key: plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.in))))
		})
	}
}

func TestExpandEnvInLoad(t *testing.T) {
	t.Setenv("AW_TEST_PORT", "9999")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: ${AW_TEST_PORT}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vizon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "VIZON_MODEL", "VIZON_DB", "VIZON_ADDR", "VIZON_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultsAreValidOnceKeyed(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrNoAPIKey)

	cfg.AI.APIKey = "k"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 30*time.Second, cfg.Gemini().Timeout)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
ai:
  api_key: from-file
  model: gemini-test
  timeout: 10s
dashboard:
  top_n: 3
server:
  addr: ":9000"
storage:
  path: /tmp/vizon.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AI.APIKey)
	assert.Equal(t, "gemini-test", cfg.AI.Model)
	assert.Equal(t, 10*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 3, cfg.Dashboard.TopN)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 32, cfg.Server.MaxUploadMB, "unset keys keep defaults")

	t.Setenv("GOOGLE_API_KEY", "from-env")
	t.Setenv("VIZON_ADDR", ":7000")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AI.APIKey)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "gemini-test", cfg.Gemini().Model)
}

func TestGeminiKeyWinsOverGoogleKey(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.applyEnv(func(k string) string {
		return map[string]string{"GOOGLE_API_KEY": "g", "GEMINI_API_KEY": "m"}[k]
	})
	assert.Equal(t, "g", cfg.AI.APIKey, "GOOGLE_API_KEY is applied last")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err, "the default path is optional")
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "ai: [unclosed"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"model":   func(c *Config) { c.AI.Model = "" },
		"timeout": func(c *Config) { c.AI.Timeout = 0 },
		"fetch":   func(c *Config) { c.Extract.FetchTimeout = -1 },
		"topn":    func(c *Config) { c.Dashboard.TopN = 0 },
		"upload":  func(c *Config) { c.Server.MaxUploadMB = 0 },
		"format":  func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.AI.APIKey = "k"
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

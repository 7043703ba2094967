package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/approval"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configFileEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2924", cfg.RegistryAddr)
	assert.Equal(t, "127.0.0.1:2925", cfg.ApprovalAddr)
	assert.Equal(t, "127.0.0.1:2926", cfg.GatewayAddr)
	assert.Equal(t, 30*time.Second, cfg.FreshnessWindow.Duration)
	assert.Equal(t, 15*time.Second, cfg.PushTimeout.Duration)
	assert.Equal(t, 100, cfg.RegistryCapacity)
	assert.Equal(t, uint64(533), cfg.Keys().Modulus)
	assert.Equal(t, approval.PolicyIgnore, cfg.Policy())
	assert.Equal(t, ":8080", cfg.HTTPAddress())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lodi.toml")
	body := `
log_level = "debug"
gateway_addr = "0.0.0.0:3000"
push_timeout = "5s"
device_reregister_policy = "update"
user_id = 7
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv(configFileEnvVar, path)
	t.Setenv("GATEWAY_ADDR", "127.0.0.1:4000")
	t.Setenv("FRESHNESS_WINDOW", "45")
	t.Setenv("SESSION_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:4000", cfg.GatewayAddr)
	assert.Equal(t, 5*time.Second, cfg.PushTimeout.Duration)
	assert.Equal(t, 45*time.Second, cfg.FreshnessWindow.Duration)
	assert.Equal(t, time.Hour, cfg.SessionTTL.Duration)
	assert.Equal(t, approval.PolicyUpdate, cfg.Policy())
	assert.Equal(t, uint32(7), cfg.UserID)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PUSH_TIMEOUT":             "soon",
		"LODI_USER_ID":             "-1",
		"DEVICE_REREGISTER_POLICY": "replace",
		"SIGNATURE_MODULUS":        "1",
		"REGISTRY_CAPACITY":        "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(configFileEnvVar, "")
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

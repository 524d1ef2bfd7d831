package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/config"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadShared_RequiresS2SSecret(t *testing.T) {
	withEnv(t, map[string]string{"S2S_SHARED_SECRET": ""})
	os.Unsetenv("S2S_SHARED_SECRET")

	_, err := config.LoadShared()
	require.Error(t, err)
}

func TestLoadShared_Defaults(t *testing.T) {
	withEnv(t, map[string]string{"S2S_SHARED_SECRET": "test-secret"})

	c, err := config.LoadShared()
	require.NoError(t, err)
	require.Equal(t, config.EnvDevelopment, c.Environment)
	require.Equal(t, 30*60.0, c.TokenTTL.Seconds())
	require.True(t, c.ResetAllAllowed())
}

func TestResetAllAllowed_ProductionRequiresOptIn(t *testing.T) {
	withEnv(t, map[string]string{
		"S2S_SHARED_SECRET": "test-secret",
		"ENVIRONMENT":       config.EnvProduction,
	})

	c, err := config.LoadShared()
	require.NoError(t, err)
	require.False(t, c.ResetAllAllowed(), "production must refuse scope=all without the opt-in flag")

	withEnv(t, map[string]string{"PRODUCTION_RESET_ALLOWED": "true"})
	c, err = config.LoadShared()
	require.NoError(t, err)
	require.True(t, c.ResetAllAllowed())
}

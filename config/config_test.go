package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV_NAME", "dev")
	unsetEnv(t, "JWT_SECRET")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.App.Environment)
	assert.Equal(t, defaultJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "0.008", cfg.Escrow.FeeRate)
}

func TestLoadConfigRejectsDefaultSecretOutsideDev(t *testing.T) {
	t.Setenv("ENV_NAME", "production")
	unsetEnv(t, "JWT_SECRET")

	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", defaultJWTSecret)
	_, err = LoadConfig()
	assert.ErrorIs(t, err, ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", "4f1c9d0e-rotated-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "4f1c9d0e-rotated-secret", cfg.Auth.JWTSecret)
}

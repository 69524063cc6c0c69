package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("CLIENT_URL", "http://localhost:3000/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 168*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "http://localhost:3000", cfg.ClientURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.MailEnabled())
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.0/8 ,")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.0/8"}, cfg.TrustedProxies)
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "a")
	t.Setenv("SESSION_SECRET", "b")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadCORSList(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("CORS_ORIGINS", "https://a.dev/, https://b.dev ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, cfg.CORSOrigins)
}

func TestLoadBadTTL(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_TTL", "forever")
	_, err := Load()
	assert.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("NOTIFIER_PORT", "")
	t.Setenv("RETRY_CONSUMER_PORT", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("LINK_SECRET", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "8081", cfg.NotifierPort)
	assert.Equal(t, "8085", cfg.RetryConsumerPort)
	assert.Equal(t, "bizworx_session", cfg.SessionCookieName)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.PinMaxAttempts)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("NOTIFIER_PORT", "9001")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("SESSION_SECURE", "true")
	t.Setenv("PIN_MAX_ATTEMPTS", "3")
	t.Setenv("CORS_ORIGINS", "https://app.bizworx.app, https://admin.bizworx.app,")
	t.Setenv("PUBLIC_BASE_URL", "https://app.bizworx.app/")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "9001", cfg.NotifierPort)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.SessionSecure)
	assert.Equal(t, 3, cfg.PinMaxAttempts)
	assert.Equal(t, []string{"https://app.bizworx.app", "https://admin.bizworx.app"}, cfg.CORSOrigins)
	assert.Equal(t, "https://app.bizworx.app", cfg.PublicBaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name: "development allows defaults",
			env:  map[string]string{"APP_ENV": "development", "LINK_SECRET": "", "SESSION_SECURE": ""},
		},
		{
			name:    "production with default link secret",
			env:     map[string]string{"APP_ENV": "production", "LINK_SECRET": "", "SESSION_SECURE": "true"},
			wantErr: ErrWeakLinkSecret,
		},
		{
			name:    "production with the development secret spelled out",
			env:     map[string]string{"APP_ENV": "production", "LINK_SECRET": DefaultLinkSecret, "SESSION_SECURE": "true"},
			wantErr: ErrWeakLinkSecret,
		},
		{
			name:    "production with insecure cookies",
			env:     map[string]string{"APP_ENV": "production", "LINK_SECRET": "9f2c1d7e5b", "SESSION_SECURE": "false"},
			wantErr: ErrInsecureSessions,
		},
		{
			name: "production fully configured",
			env:  map[string]string{"APP_ENV": "production", "LINK_SECRET": "9f2c1d7e5b", "SESSION_SECURE": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("BCRYPT_COST", "lots")
	t.Setenv("API_KEY_CACHE_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 30*time.Second, cfg.APIKeyCacheTTL)
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "bizworx_test")

	dsn := GetDatabaseConfig().GetDSN()

	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=bizworx_test")
	assert.Contains(t, dsn, "sslmode=disable")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		// t.Setenv sets the environment variable for the duration of the test
		// and automatically restores it afterwards.
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "8080")
		t.Setenv("APP_ENV", "test")
		t.Setenv("ADYEN_MERCHANT_ACCOUNT", "ShopCOM")
		t.Setenv("ADYEN_SKIN_CODE", "sk1n")
		t.Setenv("ADYEN_ENVIRONMENT", "live")
		t.Setenv("RECONCILE_INTERVAL", "30s")
		t.Setenv("SHIP_BEFORE_DAYS", "5")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "ShopCOM", cfg.AdyenMerchantAccount)
		assert.Equal(t, "sk1n", cfg.AdyenSkinCode)
		assert.Equal(t, "live", cfg.AdyenEnvironment)
		assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
		assert.Equal(t, 5, cfg.ShipBeforeDays)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("ADYEN_ENVIRONMENT", "")
		t.Setenv("RECONCILE_INTERVAL", "not-a-duration")
		t.Setenv("NOTIFICATION_CLAIM_TTL", "")
		t.Setenv("SESSION_VALIDITY", "")
		t.Setenv("SHIP_BEFORE_DAYS", "")

		cfg := LoadConfig()

		assert.Equal(t, "test", cfg.AdyenEnvironment)
		assert.Equal(t, time.Minute, cfg.ReconcileInterval)
		assert.Equal(t, 5*time.Minute, cfg.NotificationClaimTTL)
		assert.Equal(t, time.Hour, cfg.SessionValidity)
		assert.Equal(t, 3, cfg.ShipBeforeDays)
	})

	t.Run("Non-positive durations fall back", func(t *testing.T) {
		for _, v := range []string{"0s", "0", "-5s"} {
			t.Setenv("DB_HOST", "localhost")
			t.Setenv("RECONCILE_INTERVAL", v)
			t.Setenv("NOTIFICATION_CLAIM_TTL", v)
			t.Setenv("SESSION_VALIDITY", v)

			cfg := LoadConfig()

			assert.Equal(t, time.Minute, cfg.ReconcileInterval, v)
			assert.Equal(t, 5*time.Minute, cfg.NotificationClaimTTL, v)
			assert.Equal(t, time.Hour, cfg.SessionValidity, v)
		}
	})
}

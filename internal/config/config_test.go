package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("APP_ENV", "Development")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "8080", cfg.AppPort)
		require.Equal(t, EnvDevelopment, cfg.AppEnv)
		require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
		require.Equal(t, 24*time.Hour, cfg.TokenExpires())
		require.False(t, cfg.StrictVerification())
		require.False(t, cfg.Gateways.Easebuzz.Enabled())
		require.False(t, cfg.Gateways.UPI.Enabled())
		require.False(t, cfg.KafkaEnabled())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("invalid env", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("APP_ENV", "staging")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "APP_ENV")
	})

	t.Run("gateway credentials and kafka", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("APP_ENV", "PRODUCTION")
		t.Setenv("EASEBUZZ_KEY", "key")
		t.Setenv("EASEBUZZ_SALT", "  salt ")
		t.Setenv("EASEBUZZ_ENV", "prod")
		t.Setenv("UPIGATEWAY_KEY", "upi-key")
		t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

		cfg, err := Load()
		require.NoError(t, err)
		require.True(t, cfg.IsProduction())
		require.True(t, cfg.StrictVerification())
		require.True(t, cfg.Gateways.Easebuzz.Enabled())
		require.Equal(t, "https://pay.easebuzz.in", cfg.Gateways.Easebuzz.BaseURL())
		require.True(t, cfg.Gateways.UPI.Enabled())
		require.Equal(t, "http://localhost:8080/api/payments/success", cfg.Gateways.UPI.RedirectURL)
		require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
		require.True(t, cfg.KafkaEnabled())
	})
}

func TestValidateUPIRedirect(t *testing.T) {
	cfg := &Config{
		AppPort:      "8080",
		AppEnv:       EnvDevelopment,
		StoreDriver:  StoreDriverMemory,
		JWTSecret:    "secret",
		TokenTTLHour: 1,
		Gateways:     Gateways{UPI: UPIGateway{Key: "upi-key"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "UPIGATEWAY_REDIRECT_URL")

	cfg.Gateways.UPI.RedirectURL = "/api/payments/success"
	require.Error(t, cfg.Validate())

	cfg.Gateways.UPI.RedirectURL = "https://shop.example/return"
	require.NoError(t, cfg.Validate())

	cfg.Gateways.UPI = UPIGateway{}
	require.NoError(t, cfg.Validate(), "a disabled gateway needs no redirect")
}

func TestStrictVerificationOverride(t *testing.T) {
	cfg := &Config{AppEnv: EnvProduction, HashVerification: VerificationPermissive}
	require.False(t, cfg.StrictVerification())

	cfg = &Config{AppEnv: EnvDevelopment, HashVerification: VerificationStrict}
	require.True(t, cfg.StrictVerification())
}

func TestEasebuzzBaseURL(t *testing.T) {
	require.Equal(t, "https://testpay.easebuzz.in", Easebuzz{Env: "test"}.BaseURL())
	require.Equal(t, "http://localhost:9000", Easebuzz{PayURL: "http://localhost:9000/"}.BaseURL())
}

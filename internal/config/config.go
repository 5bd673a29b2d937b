// Package config loads service configuration from the environment. Every
// setting has a default suitable for a local demo deployment; production
// overrides come in through the process environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Gateway channel names.
const (
	ChannelSimulator = "simulator"
	ChannelPayPal    = "paypal"
)

// Config holds the full service configuration.
type Config struct {
	Addr string

	// GatewayChannel selects the payment gateway: simulator or paypal.
	GatewayChannel string
	PayPalClientID string
	PayPalSecret   string
	PayPalLive     bool

	// RedisAddr enables the shared idempotency store when set; empty keeps
	// the in-process store.
	RedisAddr     string
	RedisPassword string

	// PostgresDSN enables the durable ledger and audit sink when set; empty
	// keeps the in-memory ledger.
	PostgresDSN string

	MinAmountCents     int64
	MaxAmountCents     int64
	Currencies         []string
	PlatformFeePercent float64

	IdempotencyTTL  time.Duration
	SweepInterval   time.Duration
	ReleaseInterval time.Duration

	BreakerFailureThreshold int
	BreakerFailureRate      float64
	BreakerCooldown         time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
}

// Load reads configuration from the environment, falling back to demo
// defaults.
func Load() Config {
	return Config{
		Addr: ":" + envString("PORT", "8080"),

		GatewayChannel: envString("GATEWAY_CHANNEL", ChannelSimulator),
		PayPalClientID: os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalSecret:   os.Getenv("PAYPAL_SECRET"),
		PayPalLive:     envBool("PAYPAL_LIVE", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),

		MinAmountCents:     envInt64("MIN_AMOUNT_CENTS", 50),
		MaxAmountCents:     envInt64("MAX_AMOUNT_CENTS", 100_000_000),
		Currencies:         envStrings("CURRENCIES", []string{"USD", "EUR", "MXN", "BRL"}),
		PlatformFeePercent: envFloat("PLATFORM_FEE_PERCENT", 2.9),

		IdempotencyTTL:  envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		SweepInterval:   envDuration("IDEMPOTENCY_SWEEP_INTERVAL", time.Hour),
		ReleaseInterval: envDuration("ESCROW_RELEASE_INTERVAL", time.Minute),

		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerFailureRate:      envFloat("BREAKER_FAILURE_RATE", 0.5),
		BreakerCooldown:         envDuration("BREAKER_COOLDOWN", 30*time.Second),

		RetryMaxAttempts:  envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: envDuration("RETRY_INITIAL_DELAY", time.Second),
		RetryMaxDelay:     envDuration("RETRY_MAX_DELAY", 30*time.Second),
		RetryMultiplier:   envFloat("RETRY_MULTIPLIER", 2.0),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envStrings(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		return cast.ToInt(v)
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		return cast.ToInt64(v)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		return cast.ToFloat64(v)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return cast.ToBool(v)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d := cast.ToDuration(v); d > 0 {
			return d
		}
	}
	return def
}

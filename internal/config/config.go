package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	LedgerURL       string
	APIToken        string

	PoolContract     string
	TicketPriceUnits int64

	ContextIdleTimeout   time.Duration
	ContextSweepInterval time.Duration
	ClassifyTimeout      time.Duration
	AssembleTimeout      time.Duration
	PoolRetention        time.Duration
	PoolGCInterval       time.Duration

	// FastPath lets a message that states both quantity and purchase type
	// execute without a confirmation round-trip.
	FastPath bool
}

func Load() Config {
	return Config{
		Port:            envInt("JACKPOT_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("JACKPOT_MODEL", "claude-haiku-4-5"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),
		LedgerURL:       envStr("LEDGER_URL", "http://ledger-gateway:8780"),
		APIToken:        envStr("JACKPOT_API_TOKEN", ""),

		PoolContract:     envStr("POOL_CONTRACT_ADDRESS", ""),
		TicketPriceUnits: envInt64("TICKET_PRICE_UNITS", 1_000_000),

		ContextIdleTimeout:   envDuration("CONTEXT_IDLE_TIMEOUT", 5*time.Minute),
		ContextSweepInterval: envDuration("CONTEXT_SWEEP_INTERVAL", 5*time.Minute),
		ClassifyTimeout:      envDuration("CLASSIFY_TIMEOUT", 8*time.Second),
		AssembleTimeout:      envDuration("ASSEMBLE_TIMEOUT", 10*time.Second),
		PoolRetention:        envDuration("POOL_RETENTION", 30*24*time.Hour),
		PoolGCInterval:       envDuration("POOL_GC_INTERVAL", time.Hour),

		FastPath: envBool("FAST_PATH", true),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	NatsURL          string
	NatsToken        string
	DatabaseURL      string
	LogLevel         string
	OpenRouterAPIKey string
	GeneratorModel   string
	CriticModel      string
	RefinerModel     string
	AgentModel       string
	StyleModel       string
}

func Load() Config {
	generator := envStr("GENERATOR_MODEL", "anthropic/claude-sonnet-4")
	return Config{
		Port:             envInt("CLIPSMITH_PORT", 8760),
		NatsURL:          envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:        envStr("NATS_TOKEN", ""),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		OpenRouterAPIKey: envStr("OPENROUTER_API_KEY", ""),
		GeneratorModel:   generator,
		CriticModel:      envStr("CRITIC_MODEL", "anthropic/claude-3.5-haiku"),
		RefinerModel:     envStr("REFINER_MODEL", generator),
		AgentModel:       envStr("AGENT_MODEL", generator),
		StyleModel:       envStr("STYLE_MODEL", generator),
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

// Package config holds process configuration: environment-derived settings,
// swarm defaults, and the built-in model catalog with pricing.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide configuration, populated from the environment
// at startup and treated as read-only afterwards.
type Config struct {
	// HTTP
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	// Upstream chat-completions API
	UpstreamAPIKey  string `env:"OPENROUTER_API_KEY"`
	UpstreamBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	// Optional HTTP-Referer / X-Title identification sent upstream.
	Referrer string `env:"APP_REFERRER"`
	AppTitle string `env:"APP_TITLE" envDefault:"hivemind"`

	// Trace persistence
	TraceDir string `env:"TRACE_DIR" envDefault:"./traces"`

	// Swarm defaults
	SwarmSize   int           `env:"SWARM_SIZE" envDefault:"8"`
	MaxAgents   int           `env:"MAX_AGENTS" envDefault:"20"`
	ThrottleMs  int           `env:"AGENT_THROTTLE_MS" envDefault:"6000"`
	MaxBudget   float64       `env:"MAX_BUDGET" envDefault:"2.0"`
	CallTimeout time.Duration `env:"UPSTREAM_CALL_TIMEOUT" envDefault:"120s"`

	// Per-IP rate limits. The execute endpoint gets a stricter budget
	// because missions are expensive upstream.
	RateLimitRPS      float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	ExecuteLimitRPS   float64 `env:"EXECUTE_RATE_LIMIT_RPS" envDefault:"0.5"`
	ExecuteLimitBurst int     `env:"EXECUTE_RATE_LIMIT_BURST" envDefault:"5"`

	// Models
	SwarmModel     string `env:"SWARM_MODEL" envDefault:"google/gemini-2.0-flash-exp:free"`
	ReviewerModel  string `env:"REVIEWER_MODEL" envDefault:"openai/gpt-4o"`
	SynthesisModel string `env:"SYNTHESIS_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`
	FallbackModel  string `env:"FALLBACK_MODEL" envDefault:"openai/gpt-4o-mini"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}

// Throttle returns the inter-agent stagger delay.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

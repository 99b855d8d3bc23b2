// Package config provides application configuration.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrDiscordNotConfigured is returned when the bot credential or channel is missing.
// It disables the Discord bridge only; the rest of the server keeps running.
var ErrDiscordNotConfigured = errors.New("discord bridge not configured")

// Config holds all application configuration.
type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	FrontendURL    string        `env:"FRONTEND_URL"`
	DBPath         string        `env:"DB_PATH" envDefault:"./data/points.db"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RelaySecret    string        `env:"RELAY_SECRET"`
	HandlerTimeout time.Duration `env:"INTERACTION_TIMEOUT" envDefault:"15s"`
	Discord        DiscordConfig `envPrefix:"DISCORD_"`
	Retry          RetryConfig   `envPrefix:"DB_RETRY_"`
}

// DiscordConfig controls the bot session and the approval channel.
type DiscordConfig struct {
	Token          string        `env:"BOT_TOKEN"`
	ChannelID      string        `env:"CHANNEL_ID"`
	PublicKey      string        `env:"PUBLIC_KEY"`
	MaxAttempts    int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	RetryDelay     time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	PollInterval   time.Duration `env:"READY_POLL_INTERVAL" envDefault:"1s"`
	PollAttempts   int           `env:"READY_POLL_ATTEMPTS" envDefault:"10"`
	CustomPointSet []int         `env:"CUSTOM_POINTS" envSeparator:"," envDefault:"5,10,15,20,25,30,40,50"`
}

// RetryConfig controls retries on SQLite busy/locked errors.
type RetryConfig struct {
	MaxRetries int           `env:"MAX" envDefault:"3"`
	BaseDelay  time.Duration `env:"BASE_DELAY" envDefault:"50ms"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
// The Discord block is checked separately by DiscordConfig.Validate.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("INTERACTION_TIMEOUT must be > 0")
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("DB_RETRY_MAX must be > 0")
	}
	if c.Discord.MaxAttempts <= 0 {
		return fmt.Errorf("DISCORD_MAX_RECONNECT_ATTEMPTS must be > 0")
	}
	if c.Discord.PollAttempts <= 0 {
		return fmt.Errorf("DISCORD_READY_POLL_ATTEMPTS must be > 0")
	}
	for _, p := range c.Discord.CustomPointSet {
		if p <= 0 {
			return fmt.Errorf("DISCORD_CUSTOM_POINTS must only contain positive values")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Validate reports ErrDiscordNotConfigured when the bridge cannot start.
func (d DiscordConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Token) == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if strings.TrimSpace(d.ChannelID) == "" {
		missing = append(missing, "DISCORD_CHANNEL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrDiscordNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// VerifyKey decodes the application public key used to verify signed
// interaction webhooks. It returns nil when no key is configured.
func (d DiscordConfig) VerifyKey() (ed25519.PublicKey, error) {
	if d.PublicKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(d.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode DISCORD_PUBLIC_KEY: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("DISCORD_PUBLIC_KEY must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

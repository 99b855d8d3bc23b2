package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.Discord.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Discord.MaxAttempts)
	}
	if cfg.Discord.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", cfg.Discord.RetryDelay)
	}
	if cfg.Discord.PollAttempts != 10 {
		t.Errorf("PollAttempts = %d, want 10", cfg.Discord.PollAttempts)
	}
	if len(cfg.Discord.CustomPointSet) != 8 {
		t.Errorf("CustomPointSet has %d values, want 8", len(cfg.Discord.CustomPointSet))
	}
}

func TestLoadRejectsBadPointSet(t *testing.T) {
	t.Setenv("DISCORD_CUSTOM_POINTS", "5,-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative custom points")
	}
}

func TestDiscordValidate(t *testing.T) {
	err := DiscordConfig{ChannelID: "123"}.Validate()
	if !errors.Is(err, ErrDiscordNotConfigured) {
		t.Fatalf("expected ErrDiscordNotConfigured, got %v", err)
	}

	if err := (DiscordConfig{Token: "tok", ChannelID: "123"}).Validate(); err != nil {
		t.Fatalf("expected valid discord config, got %v", err)
	}
}

func TestVerifyKey(t *testing.T) {
	key, err := DiscordConfig{}.VerifyKey()
	if err != nil || key != nil {
		t.Fatalf("expected nil key without error, got %v, %v", key, err)
	}

	if _, err := (DiscordConfig{PublicKey: "zz"}).VerifyKey(); err == nil {
		t.Fatal("expected decode error")
	}

	if _, err := (DiscordConfig{PublicKey: "abcd"}).VerifyKey(); err == nil {
		t.Fatal("expected length error")
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(&Config{}).IsDevelopment() {
		t.Error("empty frontend URL should be development")
	}
	if (&Config{FrontendURL: "https://points.example.com"}).IsDevelopment() {
		t.Error("public URL should not be development")
	}
}

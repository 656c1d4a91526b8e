package config

import (
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("tauth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.ChallengeTarget != 400 || cfg.ChallengeLengthDays != 365 {
		t.Fatalf("unexpected challenge defaults: %d/%d", cfg.ChallengeTarget, cfg.ChallengeLengthDays)
	}
	if cfg.Location == nil || cfg.Location.String() != defaultTimezone {
		t.Fatalf("unexpected location %v", cfg.Location)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	_, err := Load(NewViper())
	if err == nil || !strings.Contains(err.Error(), "tauth.signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	configViper := NewViper()
	configViper.Set("tauth.signing_secret", "secret")
	configViper.Set("app.timezone", "Mars/Olympus")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestLoadSplitsAllowedOrigins(t *testing.T) {
	configViper := NewViper()
	configViper.Set("tauth.signing_secret", "secret")
	configViper.Set("http.allowed_origins", []string{"https://a.example, https://b.example", " "})

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

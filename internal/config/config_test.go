package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebAddr != ":8080" {
		t.Errorf("WebAddr = %q", cfg.WebAddr)
	}
	if cfg.GeminiTransport != "sdk" {
		t.Errorf("GeminiTransport = %q", cfg.GeminiTransport)
	}
	if cfg.SessionIdle != 2*time.Hour {
		t.Errorf("SessionIdle = %v", cfg.SessionIdle)
	}
	if cfg.MaxUploadBytes != 25<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if err := cfg.RequireTelegram(); err == nil {
		t.Error("RequireTelegram should fail without token")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", " 123:abc ")
	t.Setenv("GEMINI_TRANSPORT", "REST")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("QUOTA_MAX_GENERATIONS", "5")
	t.Setenv("GEMINI_TEMPERATURE", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TelegramToken != "123:abc" {
		t.Errorf("TelegramToken = %q", cfg.TelegramToken)
	}
	if cfg.GeminiTransport != "rest" {
		t.Errorf("GeminiTransport = %q", cfg.GeminiTransport)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want clamped to 1", cfg.MaxConcurrent)
	}
	if cfg.QuotaMaxGenerations != 5 {
		t.Errorf("QuotaMaxGenerations = %d", cfg.QuotaMaxGenerations)
	}
	if cfg.GeminiTemperature != 0.7 {
		t.Errorf("GeminiTemperature = %v, want fallback", cfg.GeminiTemperature)
	}
	if err := cfg.RequireTelegram(); err != nil {
		t.Errorf("RequireTelegram: %v", err)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GEMINI_TRANSPORT", "grpc")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel  string
	LogFormat string
	Debug     bool

	PreferIPv4 bool

	WebAddr        string
	MaxUploadBytes int64

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration
	SessionIdle        time.Duration

	GeminiTransport   string
	GeminiBaseURL     string
	GeminiAPIVersion  string
	GeminiTextModel   string
	GeminiVisionModel string
	GeminiTemperature float64
	GeminiRPS         float64
	GeminiBurst       int

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisUseTLS   bool

	QuotaMaxGenerations int
	QuotaWindow         time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		TelegramToken:       strings.TrimSpace(v.GetString("telegram_bot_token")),
		GeminiAPIKey:        strings.TrimSpace(v.GetString("gemini_api_key")),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:           strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		Debug:               v.GetBool("debug"),
		PreferIPv4:          v.GetBool("prefer_ipv4"),
		WebAddr:             strings.TrimSpace(v.GetString("web_addr")),
		MaxUploadBytes:      v.GetInt64("max_upload_mb") << 20,
		MediaGroupDebounce:  time.Duration(v.GetInt("media_group_debounce_ms")) * time.Millisecond,
		MaxConcurrent:       v.GetInt("max_concurrent"),
		RequestTimeout:      time.Duration(v.GetInt("request_timeout_seconds")) * time.Second,
		HTTPTimeout:         time.Duration(v.GetInt("http_timeout_seconds")) * time.Second,
		SessionIdle:         time.Duration(v.GetInt("session_idle_minutes")) * time.Minute,
		GeminiTransport:     strings.ToLower(strings.TrimSpace(v.GetString("gemini_transport"))),
		GeminiBaseURL:       strings.TrimSpace(v.GetString("gemini_base_url")),
		GeminiAPIVersion:    strings.TrimSpace(v.GetString("gemini_api_version")),
		GeminiTextModel:     strings.TrimSpace(v.GetString("gemini_text_model")),
		GeminiVisionModel:   strings.TrimSpace(v.GetString("gemini_vision_model")),
		GeminiTemperature:   v.GetFloat64("gemini_temperature"),
		GeminiRPS:           v.GetFloat64("gemini_rps"),
		GeminiBurst:         v.GetInt("gemini_burst"),
		RedisAddr:           strings.TrimSpace(v.GetString("redis_addr")),
		RedisUsername:       strings.TrimSpace(v.GetString("redis_username")),
		RedisPassword:       v.GetString("redis_password"),
		RedisDB:             v.GetInt("redis_db"),
		RedisUseTLS:         v.GetBool("redis_use_tls"),
		QuotaMaxGenerations: v.GetInt("quota_max_generations"),
		QuotaWindow:         time.Duration(v.GetInt("quota_window_hours")) * time.Hour,
	}

	switch cfg.GeminiTransport {
	case "sdk", "rest":
	default:
		return Config{}, fmt.Errorf("GEMINI_TRANSPORT must be sdk or rest, got %q", cfg.GeminiTransport)
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 2 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.GeminiTemperature < 0 || cfg.GeminiTemperature > 2 {
		cfg.GeminiTemperature = 0.7
	}
	if cfg.GeminiBurst < 1 {
		cfg.GeminiBurst = 1
	}
	if cfg.QuotaMaxGenerations < 0 {
		cfg.QuotaMaxGenerations = 0
	}
	if cfg.QuotaWindow <= 0 {
		cfg.QuotaWindow = 24 * time.Hour
	}

	return cfg, nil
}

// RequireTelegram is checked by the bot binary only; the web server runs without a token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("debug", false)
	v.SetDefault("prefer_ipv4", true)
	v.SetDefault("web_addr", ":8080")
	v.SetDefault("max_upload_mb", 25)
	v.SetDefault("media_group_debounce_ms", 1200)
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("request_timeout_seconds", 180)
	v.SetDefault("http_timeout_seconds", 180)
	v.SetDefault("session_idle_minutes", 120)
	v.SetDefault("gemini_transport", "sdk")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini_api_version", "v1beta")
	v.SetDefault("gemini_text_model", "gemini-2.5-flash")
	v.SetDefault("gemini_vision_model", "gemini-2.5-flash")
	v.SetDefault("gemini_temperature", 0.7)
	v.SetDefault("gemini_rps", 2)
	v.SetDefault("gemini_burst", 4)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_username", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_use_tls", false)
	v.SetDefault("quota_max_generations", 0)
	v.SetDefault("quota_window_hours", 24)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("gemini_api_key", "")
}

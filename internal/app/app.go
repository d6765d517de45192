package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"fashion-script-studio/internal/adapter"
	"fashion-script-studio/internal/config"
	"fashion-script-studio/internal/gemini"
	"fashion-script-studio/internal/httpclient"
	"fashion-script-studio/internal/quota"
	"fashion-script-studio/internal/session"
	"fashion-script-studio/internal/workflow"
)

// Studio is the workflow stack shared by the web server and the bot.
type Studio struct {
	HTTPClient *http.Client
	Workflow   *workflow.Controller
	Sessions   *session.Store

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Studio, error) {
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     logger,
	})

	var gen gemini.Generator
	switch cfg.GeminiTransport {
	case "rest":
		gen = gemini.NewREST(gemini.RESTOptions{
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	default:
		gen = gemini.NewSDK(gemini.SDKOptions{
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	gen = gemini.WithRateLimit(gen, cfg.GeminiRPS, cfg.GeminiBurst)

	oracle := adapter.New(adapter.Options{
		Generator:   gen,
		TextModel:   cfg.GeminiTextModel,
		VisionModel: cfg.GeminiVisionModel,
		Temperature: cfg.GeminiTemperature,
		Logger:      logger,
	})

	s := &Studio{HTTPClient: httpClient}

	var q workflow.Quota
	switch {
	case cfg.QuotaMaxGenerations <= 0:
	case cfg.RedisAddr != "":
		rq, err := quota.NewRedis(ctx, quota.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisUseTLS,
			Max:      cfg.QuotaMaxGenerations,
			Window:   cfg.QuotaWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("redis quota: %w", err)
		}
		s.closers = append(s.closers, rq.Close)
		q = rq
		logger.Info("quota enabled", "backend", "redis", "max", cfg.QuotaMaxGenerations, "window", cfg.QuotaWindow.String())
	default:
		q = quota.NewMemory(cfg.QuotaMaxGenerations, cfg.QuotaWindow)
		logger.Info("quota enabled", "backend", "memory", "max", cfg.QuotaMaxGenerations, "window", cfg.QuotaWindow.String())
	}

	s.Workflow = workflow.New(workflow.Options{
		Oracle:        oracle,
		Quota:         q,
		DefaultAPIKey: cfg.GeminiAPIKey,
		Logger:        logger,
	})
	s.Sessions = session.NewStore(session.Options{
		Controller: s.Workflow,
		IdleTTL:    cfg.SessionIdle,
	})

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, users must provide their own key")
	}
	logger.Info("gemini configured", "transport", cfg.GeminiTransport, "text_model", cfg.GeminiTextModel, "vision_model", cfg.GeminiVisionModel)
	return s, nil
}

func (s *Studio) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

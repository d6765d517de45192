package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fashion-script-studio/internal/gemini"
	"fashion-script-studio/internal/metrics"
	"fashion-script-studio/internal/studio"
)

type Options struct {
	Generator   gemini.Generator
	TextModel   string
	VisionModel string
	Temperature float64
	Logger      *slog.Logger
}

// Adapter turns workflow requests into single Gemini calls and decodes the
// JSON answers into studio types.
type Adapter struct {
	gen         gemini.Generator
	textModel   string
	visionModel string
	temperature float64
	logger      *slog.Logger
}

func New(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = "gemini-2.5-flash"
	}
	visionModel := strings.TrimSpace(opts.VisionModel)
	if visionModel == "" {
		visionModel = textModel
	}

	return &Adapter{
		gen:         opts.Generator,
		textModel:   textModel,
		visionModel: visionModel,
		temperature: opts.Temperature,
		logger:      logger,
	}
}

func (a *Adapter) AnalyzeImage(ctx context.Context, apiKey string, img studio.Image, lang studio.Language) (studio.VisionAnalysis, error) {
	const op = "analyze image"
	if len(img.Data) == 0 {
		return studio.VisionAnalysis{}, &Error{Kind: KindGeneric, Op: op, Err: errors.New("image is empty")}
	}

	text, err := a.call(ctx, "vision", gemini.Request{
		APIKey:            apiKey,
		Model:             a.visionModel,
		SystemInstruction: systemInstruction,
		Prompt:            buildVisionPrompt(lang),
		Images: []gemini.ImageInput{{
			DataBase64: base64.StdEncoding.EncodeToString(img.Data),
			MimeType:   gemini.DetectImageMime(img.MimeType, img.Data),
		}},
		JSON:        true,
		Temperature: a.temperature,
	})
	if err != nil {
		return studio.VisionAnalysis{}, wrap(op, err)
	}

	v, err := parseVision(text)
	if err != nil {
		return studio.VisionAnalysis{}, wrap(op, err)
	}
	return v, nil
}

func (a *Adapter) GenerateScripts(ctx context.Context, apiKey string, cfg studio.Configuration) ([]studio.Script, error) {
	const op = "generate scripts"

	text, err := a.call(ctx, "scripts", gemini.Request{
		APIKey:            apiKey,
		Model:             a.textModel,
		SystemInstruction: systemInstruction,
		Prompt:            buildScriptsPrompt(cfg),
		JSON:              true,
		Temperature:       a.temperature,
	})
	if err != nil {
		return nil, wrap(op, err)
	}

	scripts, err := parseScripts(text)
	if err != nil {
		return nil, wrap(op, err)
	}
	if len(scripts) != requestedScripts {
		a.logger.Warn("model returned different script count", "want", requestedScripts, "got", len(scripts))
	}
	return scripts, nil
}

func (a *Adapter) GeneratePrompts(ctx context.Context, apiKey string, script studio.Script, cfg studio.Configuration) (studio.PromptBundle, error) {
	const op = "generate prompts"

	text, err := a.call(ctx, "prompts", gemini.Request{
		APIKey:            apiKey,
		Model:             a.textModel,
		SystemInstruction: systemInstruction,
		Prompt:            buildScenePromptsPrompt(script, cfg),
		JSON:              true,
		Temperature:       a.temperature,
	})
	if err != nil {
		return studio.PromptBundle{}, wrap(op, err)
	}

	bundle, err := parseBundle(text)
	if err != nil {
		return studio.PromptBundle{}, wrap(op, err)
	}
	if len(bundle.ScenePrompts) != len(script.Scenes) {
		a.logger.Warn("model returned different scene prompt count", "scenes", len(script.Scenes), "prompts", len(bundle.ScenePrompts))
	}
	return bundle, nil
}

func (a *Adapter) call(ctx context.Context, kind string, req gemini.Request) (string, error) {
	if a.gen == nil {
		return "", errors.New("generator is nil")
	}

	start := time.Now()
	resp, err := a.gen.Generate(ctx, req)
	metrics.ModelCallDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = classify(err).String()
	}
	metrics.ModelCallsTotal.WithLabelValues(kind, outcome).Inc()

	if err != nil {
		a.logger.Error("model call failed", "kind", kind, "model", req.Model, "err", err)
		return "", err
	}
	a.logger.Info("model call done", "kind", kind, "model", req.Model, "dur_ms", time.Since(start).Milliseconds())
	return resp.Text, nil
}

func parseVision(text string) (studio.VisionAnalysis, error) {
	var v studio.VisionAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &v); err != nil {
		return studio.VisionAnalysis{}, fmt.Errorf("decode vision analysis: %w", err)
	}
	v.Normalize()
	return v, nil
}

func parseScripts(text string) ([]studio.Script, error) {
	raw := []byte(extractJSON(text))

	var scripts []studio.Script
	if err := json.Unmarshal(raw, &scripts); err != nil {
		var wrapped struct {
			Scripts []studio.Script `json:"scripts"`
		}
		if werr := json.Unmarshal(raw, &wrapped); werr != nil || wrapped.Scripts == nil {
			return nil, fmt.Errorf("decode scripts: %w", err)
		}
		scripts = wrapped.Scripts
	}

	seen := make(map[string]struct{}, len(scripts))
	for i := range scripts {
		id := strings.TrimSpace(scripts[i].ID)
		if _, dup := seen[id]; id == "" || dup {
			id = uuid.NewString()
		}
		seen[id] = struct{}{}
		scripts[i].ID = id
	}
	return scripts, nil
}

func parseBundle(text string) (studio.PromptBundle, error) {
	var bundle studio.PromptBundle
	if err := json.Unmarshal([]byte(extractJSON(text)), &bundle); err != nil {
		return studio.PromptBundle{}, fmt.Errorf("decode prompt bundle: %w", err)
	}
	return bundle, nil
}

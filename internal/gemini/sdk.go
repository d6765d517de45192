package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"google.golang.org/genai"
)

type SDKOptions struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// ClientTTL bounds how long an idle per-key SDK client is kept.
	ClientTTL time.Duration
}

// SDKClient talks to Gemini through google.golang.org/genai. One SDK client
// is built per API key, since sessions may authorize with different keys.
type SDKClient struct {
	opts    SDKOptions
	clients *cache.Cache
	logger  *slog.Logger
}

func NewSDK(opts SDKOptions) *SDKClient {
	ttl := opts.ClientTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SDKClient{
		opts:    opts,
		clients: cache.New(ttl, 2*ttl),
		logger:  logger,
	}
}

func (c *SDKClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}

	client, err := c.client(ctx, req.APIKey)
	if err != nil {
		return Response{}, err
	}

	parts := []*genai.Part{genai.NewPartFromText(strings.TrimSpace(req.Prompt))}
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(stripDataURLPrefix(img.DataBase64))
		if err != nil {
			return Response{}, fmt.Errorf("decode image %d: %w", i, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, img.MimeType))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if s := strings.TrimSpace(req.SystemInstruction); s != "" {
		config.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}

	result, err := client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return Response{}, fmt.Errorf("generate content: %w", err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return Response{}, errors.New("gemini returned no text")
	}
	c.logger.Debug("gemini sdk call done", "model", req.Model, "bytes", len(text))

	return Response{Text: text}, nil
}

func (c *SDKClient) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	key := keyFingerprint(apiKey)
	if cached, ok := c.clients.Get(key); ok {
		return cached.(*genai.Client), nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.opts.HTTPClient,
	}
	if c.opts.BaseURL != "" || c.opts.APIVersion != "" {
		cfg.HTTPOptions = genai.HTTPOptions{
			BaseURL:    c.opts.BaseURL,
			APIVersion: c.opts.APIVersion,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.clients.SetDefault(key, client)
	return client, nil
}

func keyFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

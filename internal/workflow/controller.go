package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"fashion-script-studio/internal/adapter"
	"fashion-script-studio/internal/metrics"
	"fashion-script-studio/internal/studio"
)

type Oracle interface {
	AnalyzeImage(ctx context.Context, apiKey string, img studio.Image, lang studio.Language) (studio.VisionAnalysis, error)
	GenerateScripts(ctx context.Context, apiKey string, cfg studio.Configuration) ([]studio.Script, error)
	GeneratePrompts(ctx context.Context, apiKey string, script studio.Script, cfg studio.Configuration) (studio.PromptBundle, error)
}

// Quota meters model generations per subject. Allow reports false once the
// subject has used up its allowance.
type Quota interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

type Options struct {
	Oracle Oracle
	Quota  Quota
	// DefaultAPIKey authorizes sessions that do not bring their own key.
	DefaultAPIKey string
	Logger        *slog.Logger
}

type Controller struct {
	oracle     Oracle
	quota      Quota
	defaultKey string
	logger     *slog.Logger
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		oracle:     opts.Oracle,
		quota:      opts.Quota,
		defaultKey: strings.TrimSpace(opts.DefaultAPIKey),
		logger:     logger,
	}
}

func (c *Controller) NewSession(id, subject string) *Session {
	return &Session{
		ID:         id,
		Subject:    subject,
		stage:      StageConfiguring,
		authorized: c.defaultKey != "",
		config:     studio.DefaultConfiguration(),
		updatedAt:  time.Now(),
	}
}

func (c *Controller) Authorize(s *Session, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if apiKey == "" && c.defaultKey == "" {
		return ErrCredentialRequired
	}
	s.credential = apiKey
	s.authorized = true
	s.lastError = ""
	s.touchLocked()
	return nil
}

func (c *Controller) Revoke(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeLocked()
}

func (s *Session) revokeLocked() {
	s.authorized = false
	s.credential = ""
	s.touchLocked()
}

func (c *Controller) keyLocked(s *Session) string {
	if s.credential != "" {
		return s.credential
	}
	return c.defaultKey
}

// ConfigPatch carries the fields a user edited; nil fields are left alone.
type ConfigPatch struct {
	ProductName        *string `json:"productName,omitempty"`
	ProductDescription *string `json:"productDescription,omitempty"`
	VideoStyle         *string `json:"videoStyle,omitempty"`
	VideoType          *string `json:"videoType,omitempty"`
	Language           *string `json:"language,omitempty"`
	Accent             *string `json:"accent,omitempty"`
}

func (c *Controller) UpdateConfig(s *Session, patch ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageConfiguring && s.stage != StageSelecting {
		return c.reject("update_config", ErrWrongStage)
	}

	next := s.config
	if patch.ProductName != nil {
		next.ProductName = *patch.ProductName
	}
	if patch.ProductDescription != nil {
		next.ProductDescription = *patch.ProductDescription
	}
	if patch.VideoStyle != nil {
		v, err := studio.ParseVideoStyle(*patch.VideoStyle)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		next.VideoStyle = v
	}
	if patch.VideoType != nil {
		v, err := studio.ParseVideoType(*patch.VideoType)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		next.VideoType = v
	}
	if patch.Language != nil {
		v, err := studio.ParseLanguage(*patch.Language)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		next.Language = v
	}
	if patch.Accent != nil {
		v, err := studio.ParseAccent(*patch.Accent)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		next.Accent = v
	}

	s.config = next
	s.touchLocked()
	return nil
}

func (c *Controller) AnalyzeImage(ctx context.Context, s *Session, img studio.Image) error {
	s.mu.Lock()
	switch {
	case !s.authorized:
		s.mu.Unlock()
		return c.reject("analyze", ErrUnauthorized)
	case s.stage != StageConfiguring && s.stage != StageSelecting:
		s.mu.Unlock()
		return c.reject("analyze", ErrWrongStage)
	case s.analyzing:
		s.mu.Unlock()
		return c.reject("analyze", ErrInFlight)
	}
	s.analyzing = true
	s.lastError = ""
	key := c.keyLocked(s)
	lang := s.config.Language
	s.touchLocked()
	s.mu.Unlock()

	vision, err := c.oracle.AnalyzeImage(ctx, key, img, lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzing = false
	s.touchLocked()
	if err != nil {
		c.failLocked(s, err, msgVision, true)
		return err
	}

	s.config.Vision = &vision
	s.config.ProductDescription = studio.DescribeVision(vision, s.config.Language)
	return nil
}

func (c *Controller) GenerateScripts(ctx context.Context, s *Session) error {
	s.mu.Lock()
	switch {
	case !s.authorized:
		s.mu.Unlock()
		return c.reject("generate_scripts", ErrUnauthorized)
	case s.stage != StageConfiguring && s.stage != StageSelecting:
		s.mu.Unlock()
		return c.reject("generate_scripts", ErrWrongStage)
	case s.generatingScripts:
		s.mu.Unlock()
		return c.reject("generate_scripts", ErrInFlight)
	case strings.TrimSpace(s.config.ProductName) == "":
		s.mu.Unlock()
		return c.reject("generate_scripts", ErrProductNameRequired)
	}
	s.generatingScripts = true
	s.lastError = ""
	epoch := s.scriptsEpoch
	start := s.stage
	key := c.keyLocked(s)
	cfg := cloneConfig(s.config)
	cfg.ProductName = strings.TrimSpace(cfg.ProductName)
	s.touchLocked()
	s.mu.Unlock()

	var scripts []studio.Script
	err := c.checkQuota(ctx, s.Subject)
	if err == nil {
		scripts, err = c.oracle.GenerateScripts(ctx, key, cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatingScripts = false
	s.touchLocked()
	if err != nil {
		c.failLocked(s, err, msgScripts, s.scriptsEpoch == epoch && s.stage == start)
		return err
	}
	if s.scriptsEpoch != epoch || s.stage != start {
		return ErrStaleResult
	}

	from := s.stage
	s.scripts = scripts
	s.selectedID = ""
	s.bundle = nil
	s.stage = StageSelecting
	s.scriptsEpoch++
	s.promptsEpoch++
	c.transition(from, s.stage)
	return nil
}

func (c *Controller) SelectScript(s *Session, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageSelecting {
		return c.reject("select", ErrWrongStage)
	}
	if _, ok := s.findScriptLocked(id); !ok {
		return c.reject("select", ErrUnknownScript)
	}
	if s.selectedID != id {
		s.selectedID = id
		s.promptsEpoch++
	}
	s.touchLocked()
	return nil
}

func (c *Controller) GeneratePrompts(ctx context.Context, s *Session) error {
	s.mu.Lock()
	switch {
	case !s.authorized:
		s.mu.Unlock()
		return c.reject("generate_prompts", ErrUnauthorized)
	case s.stage != StageSelecting:
		s.mu.Unlock()
		return c.reject("generate_prompts", ErrWrongStage)
	case s.generatingPrompts:
		s.mu.Unlock()
		return c.reject("generate_prompts", ErrInFlight)
	}
	script, ok := s.findScriptLocked(s.selectedID)
	if !ok {
		s.mu.Unlock()
		return c.reject("generate_prompts", ErrNoSelection)
	}
	s.generatingPrompts = true
	s.lastError = ""
	epoch := s.promptsEpoch
	key := c.keyLocked(s)
	cfg := cloneConfig(s.config)
	s.touchLocked()
	s.mu.Unlock()

	var bundle studio.PromptBundle
	err := c.checkQuota(ctx, s.Subject)
	if err == nil {
		bundle, err = c.oracle.GeneratePrompts(ctx, key, script, cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatingPrompts = false
	s.touchLocked()
	if err != nil {
		c.failLocked(s, err, msgPrompts, s.promptsEpoch == epoch)
		return err
	}
	if s.promptsEpoch != epoch || s.stage != StageSelecting {
		return ErrStaleResult
	}

	s.bundle = &bundle
	s.stage = StageReviewing
	// a script batch requested before this point no longer matches what the user sees
	s.scriptsEpoch++
	c.transition(StageSelecting, StageReviewing)
	return nil
}

func (c *Controller) Back(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageReviewing {
		return c.reject("back", ErrWrongStage)
	}
	s.bundle = nil
	s.stage = StageSelecting
	s.promptsEpoch++
	s.touchLocked()
	c.transition(StageReviewing, StageSelecting)
	return nil
}

// Reset returns to configuring. Configuration and authorization survive.
func (c *Controller) Reset(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.stage
	s.stage = StageConfiguring
	s.scripts = nil
	s.selectedID = ""
	s.bundle = nil
	s.lastError = ""
	s.scriptsEpoch++
	s.promptsEpoch++
	s.touchLocked()
	c.transition(from, StageConfiguring)
}

func (c *Controller) checkQuota(ctx context.Context, subject string) error {
	if c.quota == nil {
		return nil
	}
	ok, err := c.quota.Allow(ctx, subject)
	if err != nil {
		c.logger.Warn("quota check failed, allowing", "subject", subject, "err", err)
		return nil
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

// failLocked records a failed model call. Credential failures always revoke
// authorization; the alert is only surfaced while the result is still current.
func (c *Controller) failLocked(s *Session, err error, msg string, current bool) {
	switch {
	case adapter.IsCredential(err):
		s.revokeLocked()
		s.lastError = msgCredential
	case errors.Is(err, ErrQuotaExceeded):
		s.lastError = msgQuota
	case current:
		s.lastError = msg
	}
	c.logger.Warn("workflow action failed", "session_id", s.ID, "err", err)
}

func (c *Controller) reject(action string, err error) error {
	reason := strings.TrimPrefix(err.Error(), "workflow: ")
	metrics.WorkflowRejectionsTotal.WithLabelValues(action, reason).Inc()
	return err
}

func (c *Controller) transition(from, to Stage) {
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

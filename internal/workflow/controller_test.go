package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fashion-script-studio/internal/adapter"
	"fashion-script-studio/internal/studio"
)

type fakeOracle struct {
	mu sync.Mutex

	vision    studio.VisionAnalysis
	scripts   []studio.Script
	bundle    studio.PromptBundle
	err       error
	gate      chan struct{}
	entered   chan struct{}
	lastKey   string
	lastCfg   studio.Configuration
	callCount int
}

func (f *fakeOracle) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	f.lastKey = key
	f.callCount++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeOracle) AnalyzeImage(ctx context.Context, apiKey string, img studio.Image, lang studio.Language) (studio.VisionAnalysis, error) {
	if err := f.wait(ctx, apiKey); err != nil {
		return studio.VisionAnalysis{}, err
	}
	return f.vision, nil
}

func (f *fakeOracle) GenerateScripts(ctx context.Context, apiKey string, cfg studio.Configuration) ([]studio.Script, error) {
	f.mu.Lock()
	f.lastCfg = cfg
	f.mu.Unlock()
	if err := f.wait(ctx, apiKey); err != nil {
		return nil, err
	}
	return f.scripts, nil
}

func (f *fakeOracle) GeneratePrompts(ctx context.Context, apiKey string, script studio.Script, cfg studio.Configuration) (studio.PromptBundle, error) {
	if err := f.wait(ctx, apiKey); err != nil {
		return studio.PromptBundle{}, err
	}
	return f.bundle, nil
}

func twoScripts() []studio.Script {
	return []studio.Script{
		{ID: "a", Title: "A", Scenes: []studio.Scene{{Time: "0-3s"}, {Time: "3-6s"}}},
		{ID: "b", Title: "B", Scenes: []studio.Scene{{Time: "0-5s"}}},
	}
}

func newTestController(o *fakeOracle) *Controller {
	return New(Options{Oracle: o, DefaultAPIKey: "server-key"})
}

func strPtr(s string) *string { return &s }

func readySession(t *testing.T, c *Controller) *Session {
	t.Helper()
	s := c.NewSession("s1", "subject")
	if err := c.UpdateConfig(s, ConfigPatch{ProductName: strPtr("Đầm lụa")}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	return s
}

func TestGenerateScriptsRequiresProductName(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts()}
	c := newTestController(o)
	s := c.NewSession("s1", "")

	if err := c.UpdateConfig(s, ConfigPatch{ProductName: strPtr("   ")}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := c.GenerateScripts(context.Background(), s); !errors.Is(err, ErrProductNameRequired) {
		t.Fatalf("err = %v", err)
	}
	if o.callCount != 0 {
		t.Fatal("model must not be called without a product name")
	}
	if s.Snapshot().Stage != StageConfiguring {
		t.Fatal("stage changed")
	}
}

func TestHappyPath(t *testing.T) {
	o := &fakeOracle{
		scripts: twoScripts(),
		bundle:  studio.PromptBundle{ScenePrompts: []studio.ScenePrompt{{Description: "p1"}, {Description: "p2"}}, AdsCaption: "cap"},
	}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	if err := c.GenerateScripts(ctx, s); err != nil {
		t.Fatalf("GenerateScripts: %v", err)
	}
	st := s.Snapshot()
	if st.Stage != StageSelecting || len(st.Scripts) != 2 || st.SelectedScriptID != "" {
		t.Fatalf("after scripts: %+v", st)
	}
	if o.lastKey != "server-key" {
		t.Fatalf("key = %q", o.lastKey)
	}
	if o.lastCfg.ProductName != "Đầm lụa" {
		t.Fatalf("cfg = %+v", o.lastCfg)
	}

	if err := c.GeneratePrompts(ctx, s); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("GeneratePrompts without selection: %v", err)
	}
	if err := c.SelectScript(s, "zzz"); !errors.Is(err, ErrUnknownScript) {
		t.Fatalf("SelectScript unknown: %v", err)
	}
	if err := c.SelectScript(s, "a"); err != nil {
		t.Fatalf("SelectScript: %v", err)
	}
	if err := c.GeneratePrompts(ctx, s); err != nil {
		t.Fatalf("GeneratePrompts: %v", err)
	}
	st = s.Snapshot()
	if st.Stage != StageReviewing || st.Bundle == nil || st.Bundle.AdsCaption != "cap" {
		t.Fatalf("after prompts: %+v", st)
	}
	if st.Warning != "" {
		t.Fatalf("unexpected warning %q", st.Warning)
	}

	if err := c.Back(s); err != nil {
		t.Fatalf("Back: %v", err)
	}
	st = s.Snapshot()
	if st.Stage != StageSelecting || st.Bundle != nil || len(st.Scripts) != 2 || st.SelectedScriptID != "a" {
		t.Fatalf("after back: %+v", st)
	}

	c.Reset(s)
	st = s.Snapshot()
	if st.Stage != StageConfiguring || st.Scripts != nil || st.SelectedScriptID != "" || st.Bundle != nil {
		t.Fatalf("after reset: %+v", st)
	}
	if st.Config.ProductName != "Đầm lụa" || !st.Authorized {
		t.Fatalf("reset must keep config and authorization: %+v", st)
	}
}

func TestGenerateScriptsFailureKeepsState(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts()}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	if err := c.GenerateScripts(ctx, s); err != nil {
		t.Fatalf("GenerateScripts: %v", err)
	}
	_ = c.SelectScript(s, "b")

	o.err = &adapter.Error{Kind: adapter.KindGeneric, Op: "generate scripts", Err: errors.New("boom")}
	if err := c.GenerateScripts(ctx, s); err == nil {
		t.Fatal("expected error")
	}
	st := s.Snapshot()
	if st.Stage != StageSelecting || len(st.Scripts) != 2 || st.SelectedScriptID != "b" {
		t.Fatalf("failure changed state: %+v", st)
	}
	if st.LastError != msgScripts || !st.Authorized || st.GeneratingScripts {
		t.Fatalf("unexpected flags: %+v", st)
	}
}

func TestGeneratePromptsFailureKeepsState(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		lastError  string
		authorized bool
	}{
		{"generic", &adapter.Error{Kind: adapter.KindGeneric, Op: "generate prompts", Err: errors.New("boom")}, msgPrompts, true},
		{"credential", &adapter.Error{Kind: adapter.KindCredential, Op: "generate prompts", Err: errors.New("api key not valid")}, msgCredential, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &fakeOracle{scripts: twoScripts()}
			c := newTestController(o)
			s := readySession(t, c)
			ctx := context.Background()

			if err := c.GenerateScripts(ctx, s); err != nil {
				t.Fatalf("GenerateScripts: %v", err)
			}
			if err := c.SelectScript(s, "a"); err != nil {
				t.Fatalf("SelectScript: %v", err)
			}

			o.err = tc.err
			if err := c.GeneratePrompts(ctx, s); err == nil {
				t.Fatal("expected error")
			}
			st := s.Snapshot()
			if st.Stage != StageSelecting || len(st.Scripts) != 2 || st.SelectedScriptID != "a" || st.Bundle != nil {
				t.Fatalf("failure changed state: %+v", st)
			}
			if st.LastError != tc.lastError || st.Authorized != tc.authorized || st.GeneratingPrompts {
				t.Fatalf("unexpected flags: %+v", st)
			}
		})
	}
}

func TestCredentialFailureRevokes(t *testing.T) {
	o := &fakeOracle{err: &adapter.Error{Kind: adapter.KindCredential, Op: "generate scripts", Err: errors.New("403")}}
	c := newTestController(o)
	s := readySession(t, c)

	if err := c.Authorize(s, "user-key"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	err := c.GenerateScripts(context.Background(), s)
	if !adapter.IsCredential(err) {
		t.Fatalf("err = %v", err)
	}
	st := s.Snapshot()
	if st.Authorized || st.LastError != msgCredential || st.Stage != StageConfiguring {
		t.Fatalf("state after credential failure: %+v", st)
	}
	if o.lastKey != "user-key" {
		t.Fatalf("user key not used: %q", o.lastKey)
	}

	if err := c.GenerateScripts(context.Background(), s); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorizeWithoutServerKey(t *testing.T) {
	c := New(Options{Oracle: &fakeOracle{}})
	s := c.NewSession("s", "")
	if s.Snapshot().Authorized {
		t.Fatal("session must start unauthorized without a server key")
	}
	if err := c.Authorize(s, "  "); !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Authorize(s, "k"); err != nil || !s.Snapshot().Authorized {
		t.Fatalf("Authorize: %v", err)
	}
}

func TestInFlightRejectsDuplicate(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newTestController(o)
	s := readySession(t, c)

	done := make(chan error, 1)
	go func() { done <- c.GenerateScripts(context.Background(), s) }()
	<-o.entered

	if !s.Snapshot().GeneratingScripts {
		t.Fatal("in-flight flag not set")
	}
	if err := c.GenerateScripts(context.Background(), s); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second call: %v", err)
	}
	// state stays readable while the model call is outstanding
	if err := c.UpdateConfig(s, ConfigPatch{Accent: strPtr("southern")}); err != nil {
		t.Fatalf("UpdateConfig during call: %v", err)
	}

	close(o.gate)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if s.Snapshot().GeneratingScripts {
		t.Fatal("flag not cleared")
	}
}

func TestResetDiscardsPendingScripts(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newTestController(o)
	s := readySession(t, c)

	done := make(chan error, 1)
	go func() { done <- c.GenerateScripts(context.Background(), s) }()
	<-o.entered
	c.Reset(s)
	close(o.gate)

	if err := <-done; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("err = %v", err)
	}
	st := s.Snapshot()
	if st.Stage != StageConfiguring || st.Scripts != nil {
		t.Fatalf("stale scripts leaked into state: %+v", st)
	}
}

func TestRegeneratedScriptsDiscardedAfterReview(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), bundle: studio.PromptBundle{AdsCaption: "cap"}}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	if err := c.GenerateScripts(ctx, s); err != nil {
		t.Fatalf("GenerateScripts: %v", err)
	}

	o.mu.Lock()
	o.gate, o.entered = make(chan struct{}), make(chan struct{}, 1)
	gate, entered := o.gate, o.entered
	o.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.GenerateScripts(ctx, s) }()
	<-entered

	o.mu.Lock()
	o.gate, o.entered = nil, nil
	o.mu.Unlock()

	if err := c.SelectScript(s, "a"); err != nil {
		t.Fatalf("SelectScript: %v", err)
	}
	if err := c.GeneratePrompts(ctx, s); err != nil {
		t.Fatalf("GeneratePrompts: %v", err)
	}
	close(gate)

	if err := <-done; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("err = %v", err)
	}
	st := s.Snapshot()
	if st.Stage != StageReviewing || st.Bundle == nil || st.SelectedScriptID != "a" {
		t.Fatalf("late scripts overwrote review: %+v", st)
	}
}

func TestChangingSelectionDiscardsPendingPrompts(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), bundle: studio.PromptBundle{AdsCaption: "late"}}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	if err := c.GenerateScripts(ctx, s); err != nil {
		t.Fatalf("GenerateScripts: %v", err)
	}
	_ = c.SelectScript(s, "a")

	o.mu.Lock()
	o.gate = make(chan struct{})
	o.entered = make(chan struct{}, 1)
	o.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.GeneratePrompts(ctx, s) }()
	<-o.entered
	if err := c.SelectScript(s, "b"); err != nil {
		t.Fatalf("SelectScript during call: %v", err)
	}
	close(o.gate)

	if err := <-done; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("err = %v", err)
	}
	st := s.Snapshot()
	if st.Stage != StageSelecting || st.Bundle != nil || st.SelectedScriptID != "b" {
		t.Fatalf("state = %+v", st)
	}
}

func TestPromptCountMismatchWarning(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), bundle: studio.PromptBundle{ScenePrompts: []studio.ScenePrompt{{Description: "only"}}}}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	_ = c.GenerateScripts(ctx, s)
	_ = c.SelectScript(s, "a")
	if err := c.GeneratePrompts(ctx, s); err != nil {
		t.Fatalf("GeneratePrompts: %v", err)
	}
	st := s.Snapshot()
	if st.Stage != StageReviewing || len(st.Bundle.ScenePrompts) != 1 {
		t.Fatalf("bundle must be kept as returned: %+v", st)
	}
	if st.Warning == "" {
		t.Fatal("expected coverage warning")
	}
}

func TestAnalyzeImageFillsDescription(t *testing.T) {
	o := &fakeOracle{vision: studio.VisionAnalysis{Category: "túi", Style: "cổ điển", USPHighlights: []string{"Da thật"}}}
	c := newTestController(o)
	s := c.NewSession("s", "")

	if err := c.AnalyzeImage(context.Background(), s, studio.Image{Data: []byte{1}}); err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	st := s.Snapshot()
	if st.Config.Vision == nil || st.Config.Vision.Category != "túi" {
		t.Fatalf("vision not attached: %+v", st.Config)
	}
	if st.Config.ProductDescription != studio.DescribeVision(*st.Config.Vision, studio.LanguageVietnamese) {
		t.Fatalf("description = %q", st.Config.ProductDescription)
	}
}

func TestStageGuards(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts(), bundle: studio.PromptBundle{}}
	c := newTestController(o)
	s := readySession(t, c)
	ctx := context.Background()

	if err := c.Back(s); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("Back in configuring: %v", err)
	}
	if err := c.SelectScript(s, "a"); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("Select in configuring: %v", err)
	}
	if err := c.GeneratePrompts(ctx, s); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("Prompts in configuring: %v", err)
	}

	_ = c.GenerateScripts(ctx, s)
	_ = c.SelectScript(s, "a")
	_ = c.GeneratePrompts(ctx, s)

	if err := c.GenerateScripts(ctx, s); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("Scripts in reviewing: %v", err)
	}
	if err := c.UpdateConfig(s, ConfigPatch{ProductName: strPtr("x")}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("UpdateConfig in reviewing: %v", err)
	}
	if err := c.AnalyzeImage(ctx, s, studio.Image{Data: []byte{1}}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("Analyze in reviewing: %v", err)
	}
}

func TestUpdateConfigValidatesEnums(t *testing.T) {
	c := newTestController(&fakeOracle{})
	s := c.NewSession("s", "")

	err := c.UpdateConfig(s, ConfigPatch{ProductName: strPtr("x"), VideoStyle: strPtr("musical")})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
	if s.Snapshot().Config.ProductName != "" {
		t.Fatal("invalid patch must not be partially applied")
	}

	if err := c.UpdateConfig(s, ConfigPatch{VideoStyle: strPtr("no_dialogue"), Language: strPtr("english"), Accent: strPtr("none")}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	cfg := s.Snapshot().Config
	if cfg.VideoStyle != studio.StyleNoDialogue || cfg.Language != studio.LanguageEnglish || cfg.Accent != studio.AccentNone {
		t.Fatalf("cfg = %+v", cfg)
	}
}

type denyQuota struct{}

func (denyQuota) Allow(ctx context.Context, subject string) (bool, error) { return false, nil }

func TestQuotaExceeded(t *testing.T) {
	o := &fakeOracle{scripts: twoScripts()}
	c := New(Options{Oracle: o, Quota: denyQuota{}, DefaultAPIKey: "k"})
	s := readySession(t, c)

	if err := c.GenerateScripts(context.Background(), s); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v", err)
	}
	if o.callCount != 0 {
		t.Fatal("model called despite quota")
	}
	st := s.Snapshot()
	if st.LastError != msgQuota || st.GeneratingScripts || st.Stage != StageConfiguring {
		t.Fatalf("state = %+v", st)
	}
}

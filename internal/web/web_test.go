package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fashion-script-studio/internal/adapter"
	"fashion-script-studio/internal/gemini"
	"fashion-script-studio/internal/session"
	"fashion-script-studio/internal/studio"
	"fashion-script-studio/internal/workflow"
)

type fakeOracle struct {
	vision    studio.VisionAnalysis
	scripts   []studio.Script
	bundle    studio.PromptBundle
	scriptErr error
}

func (f *fakeOracle) AnalyzeImage(ctx context.Context, apiKey string, img studio.Image, lang studio.Language) (studio.VisionAnalysis, error) {
	return f.vision, nil
}

func (f *fakeOracle) GenerateScripts(ctx context.Context, apiKey string, cfg studio.Configuration) ([]studio.Script, error) {
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	return f.scripts, nil
}

func (f *fakeOracle) GeneratePrompts(ctx context.Context, apiKey string, script studio.Script, cfg studio.Configuration) (studio.PromptBundle, error) {
	return f.bundle, nil
}

func newTestServer(t *testing.T, o *fakeOracle, serverKey string) *httptest.Server {
	t.Helper()
	wf := workflow.New(workflow.Options{Oracle: o, DefaultAPIKey: serverKey})
	store := session.NewStore(session.Options{Controller: wf, IdleTTL: time.Hour})
	srv := httptest.NewServer(New(Options{Controller: wf, Sessions: store}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func createSession(t *testing.T, base string) workflow.State {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", resp.StatusCode, body)
	}
	var st workflow.State
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func decodeState(t *testing.T, body []byte) workflow.State {
	t.Helper()
	var st workflow.State
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v body=%s", err, body)
	}
	return st
}

func testFixture() *fakeOracle {
	return &fakeOracle{
		vision: studio.VisionAnalysis{Category: "đầm", Style: "thanh lịch", ColorTone: "be", TargetAge: "25-35", BrandTone: "sang trọng", USPHighlights: []string{"vải lụa"}},
		scripts: []studio.Script{
			{ID: "s1", Title: "Sáng sớm", Scenes: []studio.Scene{{Time: "0-3s"}, {Time: "3-8s"}}},
			{ID: "s2", Title: "Dạo phố", Scenes: []studio.Scene{{Time: "0-5s"}}},
		},
		bundle: studio.PromptBundle{
			ScenePrompts: []studio.ScenePrompt{
				{Description: "mở đầu <ánh sáng>", Characters: []studio.Character{{Name: "Lan"}}},
				{Description: "kết"},
			},
			AdsCaption: "Đầm lụa mới",
			Hashtags:   []string{"#dam", "#lua"},
		},
	}
}

func TestHealthAndOptions(t *testing.T) {
	srv := newTestServer(t, testFixture(), "k")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/options", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("options status = %d", resp.StatusCode)
	}
	var opts optionsResponse
	if err := json.Unmarshal(body, &opts); err != nil {
		t.Fatal(err)
	}
	if len(opts.VideoStyles) != 2 || len(opts.Accents) != 3 {
		t.Fatalf("unexpected catalog: %+v", opts)
	}
	if opts.Defaults.Language != studio.LanguageVietnamese {
		t.Fatalf("default language = %q", opts.Defaults.Language)
	}
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t, testFixture(), "k")
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
}

func TestFullFlowWithExports(t *testing.T) {
	srv := newTestServer(t, testFixture(), "k")
	st := createSession(t, srv.URL)
	base := srv.URL + "/api/sessions/" + st.SessionID
	if !st.Authorized {
		t.Fatal("session should start authorized with a server key")
	}

	resp, body := doJSON(t, http.MethodPatch, base+"/config", map[string]string{"productName": "Đầm Lụa Mùa Hè"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config status = %d body=%s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/scripts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scripts status = %d body=%s", resp.StatusCode, body)
	}
	st = decodeState(t, body)
	if st.Stage != workflow.StageSelecting || len(st.Scripts) != 2 {
		t.Fatalf("after scripts: stage=%s scripts=%d", st.Stage, len(st.Scripts))
	}

	resp, body = doJSON(t, http.MethodPost, base+"/select", map[string]string{"scriptId": "s1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d body=%s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/prompts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prompts status = %d body=%s", resp.StatusCode, body)
	}
	st = decodeState(t, body)
	if st.Stage != workflow.StageReviewing || st.Bundle == nil {
		t.Fatalf("after prompts: stage=%s", st.Stage)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/scenes/0", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scene status = %d", resp.StatusCode)
	}
	var scene sceneResponse
	if err := json.Unmarshal(body, &scene); err != nil {
		t.Fatal(err)
	}
	if scene.Filename != "veo3_prompt_scene_1.json" || len(scene.Characters) != 1 {
		t.Fatalf("scene = %+v", scene)
	}
	if resp, _ := doJSON(t, http.MethodGet, base+"/scenes/7", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("out of range scene status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/export/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json export status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("content-disposition"); !strings.Contains(cd, "veo3-prompts-all-scenes-") {
		t.Fatalf("content-disposition = %q", cd)
	}
	if !strings.Contains(string(body), "mở đầu <ánh sáng>") {
		t.Fatalf("json export should not escape html: %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/export/doc", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("doc export status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("content-type"), "application/msword") {
		t.Fatalf("content-type = %q", resp.Header.Get("content-type"))
	}
	if !bytes.Contains(body, []byte("&lt;ánh sáng&gt;")) {
		t.Fatal("doc export should escape prompt text")
	}

	resp, body = doJSON(t, http.MethodPost, base+"/back", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("back status = %d", resp.StatusCode)
	}
	if st = decodeState(t, body); st.Stage != workflow.StageSelecting || st.Bundle != nil {
		t.Fatalf("after back: stage=%s bundle=%v", st.Stage, st.Bundle)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	if st = decodeState(t, body); st.Stage != workflow.StageConfiguring || len(st.Scripts) != 0 {
		t.Fatalf("after reset: stage=%s scripts=%d", st.Stage, len(st.Scripts))
	}
}

func TestExportWithoutPrompts(t *testing.T) {
	srv := newTestServer(t, testFixture(), "k")
	st := createSession(t, srv.URL)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+st.SessionID+"/export/doc", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Run("product name required", func(t *testing.T) {
		srv := newTestServer(t, testFixture(), "k")
		st := createSession(t, srv.URL)
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+st.SessionID+"/scripts", nil)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var ae apiError
		if err := json.Unmarshal(body, &ae); err != nil {
			t.Fatal(err)
		}
		if ae.Code != "product_name_required" || ae.State == nil {
			t.Fatalf("apiError = %+v", ae)
		}
	})

	t.Run("invalid enum", func(t *testing.T) {
		srv := newTestServer(t, testFixture(), "k")
		st := createSession(t, srv.URL)
		resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/sessions/"+st.SessionID+"/config", map[string]string{"accent": "martian"})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("no server key", func(t *testing.T) {
		srv := newTestServer(t, testFixture(), "")
		st := createSession(t, srv.URL)
		base := srv.URL + "/api/sessions/" + st.SessionID
		doJSON(t, http.MethodPatch, base+"/config", map[string]string{"productName": "x"})
		if resp, _ := doJSON(t, http.MethodPost, base+"/scripts", nil); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("scripts status = %d", resp.StatusCode)
		}
		if resp, _ := doJSON(t, http.MethodPost, base+"/authorize", map[string]string{"apiKey": ""}); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("empty key status = %d", resp.StatusCode)
		}
		if resp, _ := doJSON(t, http.MethodPost, base+"/authorize", map[string]string{"apiKey": "AIza-user"}); resp.StatusCode != http.StatusOK {
			t.Fatalf("authorize status = %d", resp.StatusCode)
		}
	})

	t.Run("credential rejected", func(t *testing.T) {
		o := testFixture()
		o.scriptErr = &adapter.Error{Kind: adapter.KindCredential, Op: "scripts", Err: gemini.ErrMissingAPIKey}
		srv := newTestServer(t, o, "k")
		st := createSession(t, srv.URL)
		base := srv.URL + "/api/sessions/" + st.SessionID
		doJSON(t, http.MethodPatch, base+"/config", map[string]string{"productName": "x"})
		resp, body := doJSON(t, http.MethodPost, base+"/scripts", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var ae apiError
		if err := json.Unmarshal(body, &ae); err != nil {
			t.Fatal(err)
		}
		if ae.Code != "credential_rejected" || ae.State.Authorized || ae.Message == "" {
			t.Fatalf("apiError = %+v", ae)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{workflow.ErrInFlight, http.StatusConflict},
		{workflow.ErrQuotaExceeded, http.StatusTooManyRequests},
		{&adapter.Error{Kind: adapter.KindGeneric, Op: "prompts", Err: errors.New("boom")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestImageUpload(t *testing.T) {
	srv := newTestServer(t, testFixture(), "k")
	st := createSession(t, srv.URL)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "dress.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/api/sessions/"+st.SessionID+"/image", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got workflow.State
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Config.Vision == nil || !strings.Contains(got.Config.ProductDescription, "vải lụa") {
		t.Fatalf("config = %+v", got.Config)
	}
}

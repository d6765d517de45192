package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fashion-script-studio/internal/export"
	"fashion-script-studio/internal/logging"
	"fashion-script-studio/internal/metrics"
	"fashion-script-studio/internal/session"
	"fashion-script-studio/internal/studio"
	"fashion-script-studio/internal/workflow"
)

//go:embed static/*
var staticFS embed.FS

const maxJSONBody = 1 << 20

type Options struct {
	Controller     *workflow.Controller
	Sessions       *session.Store
	Logger         *slog.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	wf             *workflow.Controller
	sessions       *session.Store
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Server{
		wf:             opts.Controller,
		sessions:       opts.Sessions,
		logger:         logger,
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(withLogging(s.logger))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/options", s.handleOptions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)

	sess := api.PathPrefix("/sessions/{id}").Subrouter()
	sess.HandleFunc("", s.withSession(s.handleGetSession)).Methods(http.MethodGet)
	sess.HandleFunc("/authorize", s.withSession(s.handleAuthorize)).Methods(http.MethodPost)
	sess.HandleFunc("/config", s.withSession(s.handleUpdateConfig)).Methods(http.MethodPatch)
	sess.HandleFunc("/image", s.withSession(s.handleImage)).Methods(http.MethodPost)
	sess.HandleFunc("/scripts", s.withSession(s.handleGenerateScripts)).Methods(http.MethodPost)
	sess.HandleFunc("/select", s.withSession(s.handleSelect)).Methods(http.MethodPost)
	sess.HandleFunc("/prompts", s.withSession(s.handleGeneratePrompts)).Methods(http.MethodPost)
	sess.HandleFunc("/back", s.withSession(s.handleBack)).Methods(http.MethodPost)
	sess.HandleFunc("/reset", s.withSession(s.handleReset)).Methods(http.MethodPost)
	sess.HandleFunc("/scenes/{index:[0-9]+}", s.withSession(s.handleScene)).Methods(http.MethodGet)
	sess.HandleFunc("/export/json", s.withSession(s.handleExportJSON)).Methods(http.MethodGet)
	sess.HandleFunc("/export/doc", s.withSession(s.handleExportDoc)).Methods(http.MethodGet)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(staticSub))).Methods(http.MethodGet)

	return withRequestID(r)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *workflow.Session)

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		sess, ok := s.sessions.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, apiError{Code: "session_not_found", Error: "session not found"})
			return
		}
		next(w, r.WithContext(logging.WithSessionID(r.Context(), id)), sess)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

type optionsResponse struct {
	VideoStyles []studio.NamedOption `json:"videoStyles"`
	VideoTypes  []studio.NamedOption `json:"videoTypes"`
	Languages   []studio.NamedOption `json:"languages"`
	Accents     []studio.NamedOption `json:"accents"`
	Defaults    studio.Configuration `json:"defaults"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{
		VideoStyles: studio.VideoStyles(),
		VideoTypes:  studio.VideoTypes(),
		Languages:   studio.Languages(),
		Accents:     studio.Accents(),
		Defaults:    studio.DefaultConfiguration(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create(clientSubject(r))
	logging.FromContext(r.Context(), s.logger).Info("session created", "session_id", sess.ID)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	s.respond(w, r, sess, s.wf.Authorize(sess, body.APIKey))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	var patch workflow.ConfigPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	s.respond(w, r, sess, s.wf.UpdateConfig(sess, patch))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "invalid_form", Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "missing_image", Error: "missing image"})
		return
	}
	defer file.Close()

	imgBytes, err := io.ReadAll(file)
	if err != nil || len(imgBytes) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "invalid_image", Error: "failed to read image"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	err = s.wf.AnalyzeImage(ctx, sess, studio.Image{
		Data:     imgBytes,
		MimeType: header.Header.Get("Content-Type"),
	})
	s.respond(w, r, sess, err)
}

func (s *Server) handleGenerateScripts(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, r, sess, s.wf.GenerateScripts(ctx, sess))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	var body struct {
		ScriptID string `json:"scriptId"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	s.respond(w, r, sess, s.wf.SelectScript(sess, strings.TrimSpace(body.ScriptID)))
}

func (s *Server) handleGeneratePrompts(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, r, sess, s.wf.GeneratePrompts(ctx, sess))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	s.respond(w, r, sess, s.wf.Back(sess))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	s.wf.Reset(sess)
	s.respond(w, r, sess, nil)
}

type sceneResponse struct {
	Index      int                 `json:"index"`
	Scene      studio.Scene        `json:"scene"`
	Prompt     *studio.ScenePrompt `json:"prompt"`
	Characters []studio.Character  `json:"characters"`
	Filename   string              `json:"filename"`
	Warning    string              `json:"warning,omitempty"`
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	st := sess.Snapshot()
	if st.Bundle == nil || st.SelectedScript == nil {
		writeJSON(w, http.StatusConflict, apiError{Code: "no_prompts", Error: "no prompts generated yet"})
		return
	}

	idx, _ := strconv.Atoi(mux.Vars(r)["index"])
	if idx >= len(st.SelectedScript.Scenes) {
		writeJSON(w, http.StatusNotFound, apiError{Code: "unknown_scene", Error: "scene index out of range"})
		return
	}

	resp := sceneResponse{
		Index:    idx,
		Scene:    st.SelectedScript.Scenes[idx],
		Filename: fmt.Sprintf("veo3_prompt_scene_%d.json", idx+1),
		Warning:  st.Warning,
	}
	if p, ok := st.Bundle.ScenePrompt(idx); ok {
		resp.Prompt = &p
		resp.Characters = p.Characters
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	st := sess.Snapshot()
	if st.Bundle == nil {
		writeJSON(w, http.StatusConflict, apiError{Code: "no_prompts", Error: "no prompts generated yet"})
		return
	}
	doc, err := export.PromptsJSON(st.Config.ProductName, *st.Bundle)
	s.writeDocument(w, r, "json", doc, err)
}

func (s *Server) handleExportDoc(w http.ResponseWriter, r *http.Request, sess *workflow.Session) {
	st := sess.Snapshot()
	if st.Bundle == nil || st.SelectedScript == nil {
		writeJSON(w, http.StatusConflict, apiError{Code: "no_prompts", Error: "no prompts generated yet"})
		return
	}
	doc, err := export.ScriptDoc(st.Config, *st.SelectedScript, *st.Bundle)
	s.writeDocument(w, r, "doc", doc, err)
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, format string, doc export.Document, err error) {
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("export failed", "format", format, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Code: "export_failed", Error: err.Error()})
		return
	}
	metrics.ExportsTotal.WithLabelValues(format).Inc()

	w.Header().Set("content-type", doc.ContentType+"; charset=utf-8")
	w.Header().Set("content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// respond writes the session state, or the mapped error together with the
// state so the client can re-render after a failure.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, sess *workflow.Session, err error) {
	st := sess.Snapshot()
	if err == nil {
		writeJSON(w, http.StatusOK, st)
		return
	}

	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.logger).Error("request failed", "code", code, "err", err)
	}
	writeJSON(w, status, apiError{
		Code:    code,
		Error:   err.Error(),
		Message: st.LastError,
		State:   &st,
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "invalid_json", Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

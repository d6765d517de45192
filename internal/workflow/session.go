package workflow

import (
	"sync"
	"time"

	"fashion-script-studio/internal/studio"
)

type Stage string

const (
	StageConfiguring Stage = "configuring"
	StageSelecting   Stage = "selecting"
	StageReviewing   Stage = "reviewing"
)

// Session holds one user's workflow. All fields are guarded by mu, which is
// never held while a model call is outstanding.
type Session struct {
	ID      string
	Subject string

	mu         sync.Mutex
	stage      Stage
	authorized bool
	credential string

	config     studio.Configuration
	scripts    []studio.Script
	selectedID string
	bundle     *studio.PromptBundle

	analyzing         bool
	generatingScripts bool
	generatingPrompts bool

	// scriptsEpoch changes whenever a pending script batch must be dropped,
	// promptsEpoch whenever a pending prompt bundle must be dropped.
	scriptsEpoch uint64
	promptsEpoch uint64

	lastError string
	updatedAt time.Time
}

// State is an immutable view of a session for rendering.
type State struct {
	SessionID         string                `json:"sessionId"`
	Stage             Stage                 `json:"stage"`
	Authorized        bool                  `json:"authorized"`
	Config            studio.Configuration  `json:"config"`
	Scripts           []studio.Script       `json:"scripts"`
	SelectedScriptID  string                `json:"selectedScriptId,omitempty"`
	SelectedScript    *studio.Script        `json:"selectedScript,omitempty"`
	Bundle            *studio.PromptBundle  `json:"bundle,omitempty"`
	Characters        []studio.Character    `json:"characters,omitempty"`
	Analyzing         bool                  `json:"analyzing"`
	GeneratingScripts bool                  `json:"generatingScripts"`
	GeneratingPrompts bool                  `json:"generatingPrompts"`
	LastError         string                `json:"lastError,omitempty"`
	Warning           string                `json:"warning,omitempty"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		SessionID:         s.ID,
		Stage:             s.stage,
		Authorized:        s.authorized,
		Config:            cloneConfig(s.config),
		Scripts:           append([]studio.Script(nil), s.scripts...),
		SelectedScriptID:  s.selectedID,
		Analyzing:         s.analyzing,
		GeneratingScripts: s.generatingScripts,
		GeneratingPrompts: s.generatingPrompts,
		LastError:         s.lastError,
		UpdatedAt:         s.updatedAt,
	}
	if sc, ok := s.findScriptLocked(s.selectedID); ok {
		st.SelectedScript = &sc
	}
	if s.bundle != nil {
		b := *s.bundle
		st.Bundle = &b
		st.Characters = b.Characters()
		if st.SelectedScript != nil {
			st.Warning = b.Coverage(st.SelectedScript.SceneCount())
		}
	}
	return st
}

func (s *Session) findScriptLocked(id string) (studio.Script, bool) {
	if id == "" {
		return studio.Script{}, false
	}
	for _, sc := range s.scripts {
		if sc.ID == id {
			return sc, true
		}
	}
	return studio.Script{}, false
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now()
}

func cloneConfig(cfg studio.Configuration) studio.Configuration {
	if cfg.Vision != nil {
		v := *cfg.Vision
		v.USPHighlights = append([]string(nil), v.USPHighlights...)
		v.ToneScores = append([]studio.ToneScore(nil), v.ToneScores...)
		cfg.Vision = &v
	}
	return cfg
}

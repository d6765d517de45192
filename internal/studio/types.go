package studio

type VideoStyle string

const (
	StyleWithDialogue VideoStyle = "with_dialogue"
	StyleNoDialogue   VideoStyle = "no_dialogue"
)

type VideoType string

const (
	TypeSingleNarration   VideoType = "single_narration"
	TypeTwoPersonDialogue VideoType = "two_person_dialogue"
)

type Language string

const (
	LanguageVietnamese Language = "vietnamese"
	LanguageEnglish    Language = "english"
)

type Accent string

const (
	AccentNorthern Accent = "northern"
	AccentSouthern Accent = "southern"
	AccentNone     Accent = "none"
)

// DialoguePolicy tells the script instruction whether spoken lines are allowed.
type DialoguePolicy int

const (
	PolicySpokenDialogue DialoguePolicy = iota
	PolicyOverlayOnly
)

func (s VideoStyle) DialoguePolicy() DialoguePolicy {
	if s == StyleNoDialogue {
		return PolicyOverlayOnly
	}
	return PolicySpokenDialogue
}

func (p DialoguePolicy) String() string {
	if p == PolicyOverlayOnly {
		return "overlay_only"
	}
	return "spoken_dialogue"
}

type ToneScore struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type VisionAnalysis struct {
	Category      string      `json:"category"`
	ColorTone     string      `json:"color_tone"`
	Style         string      `json:"style"`
	TargetAge     string      `json:"target_age"`
	BrandTone     string      `json:"brand_tone"`
	USPHighlights []string    `json:"usp_highlights"`
	ToneScores    []ToneScore `json:"tone_scores"`
}

type Configuration struct {
	ProductName        string          `json:"productName"`
	ProductDescription string          `json:"productDescription"`
	VideoStyle         VideoStyle      `json:"videoStyle"`
	VideoType          VideoType       `json:"videoType"`
	Language           Language        `json:"language"`
	Accent             Accent          `json:"accent"`
	Vision             *VisionAnalysis `json:"visionData,omitempty"`
}

func DefaultConfiguration() Configuration {
	return Configuration{
		VideoStyle: StyleWithDialogue,
		VideoType:  TypeSingleNarration,
		Language:   LanguageVietnamese,
		Accent:     AccentNorthern,
	}
}

type Scene struct {
	Time           string `json:"time"`
	Action         string `json:"action"`
	DialogueOrText string `json:"dialogue_or_text"`
	CameraAngle    string `json:"camera_angle"`
	VisualPrompt   string `json:"visual_prompt"`
	Music          string `json:"music,omitempty"`
}

type Script struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Hook                string   `json:"hook"`
	Scenes              []Scene  `json:"scenes"`
	BenefitsHighlighted []string `json:"benefits_highlighted"`
	CTAOverlay          string   `json:"cta_overlay"`
	CTAVoice            string   `json:"cta_voice"`
	Rationale           string   `json:"rationale"`
}

type Appearance struct {
	Hair       string `json:"hair"`
	Expression string `json:"expression"`
	Outfit     string `json:"outfit"`
}

type Character struct {
	Name       string     `json:"name"`
	Age        string     `json:"age"`
	Gender     string     `json:"gender"`
	Ethnicity  string     `json:"ethnicity"`
	Appearance Appearance `json:"appearance"`
}

type ScenePrompt struct {
	Description string      `json:"description"`
	Style       string      `json:"style"`
	Camera      string      `json:"camera"`
	Lighting    string      `json:"lighting"`
	Environment string      `json:"environment"`
	Characters  []Character `json:"characters"`
	Motion      string      `json:"motion"`
	Dialogue    []string    `json:"dialogue"`
	Ending      string      `json:"ending"`
	Text        string      `json:"text"`
	Keywords    []string    `json:"keywords"`
	AspectRatio string      `json:"aspect_ratio"`
}

type PromptBundle struct {
	ScenePrompts  []ScenePrompt `json:"scenePrompts"`
	AdsCaption    string        `json:"adsCaption"`
	Hashtags      []string      `json:"hashtags"`
	CTAVariations []string      `json:"ctaVariations"`
}

// ScenePrompt returns the prompt paired with scene i. Scenes beyond the
// returned prompts have no pairing and report false.
func (b *PromptBundle) ScenePrompt(i int) (ScenePrompt, bool) {
	if b == nil || i < 0 || i >= len(b.ScenePrompts) {
		return ScenePrompt{}, false
	}
	return b.ScenePrompts[i], true
}

// Coverage compares the number of scene prompts with the number of scenes.
// A non-empty warning means the two counts differ.
func (b *PromptBundle) Coverage(sceneCount int) string {
	if b == nil {
		return ""
	}
	got := len(b.ScenePrompts)
	switch {
	case got < sceneCount:
		return "model returned fewer scene prompts than scenes"
	case got > sceneCount:
		return "model returned more scene prompts than scenes"
	}
	return ""
}

func (s Script) SceneCount() int {
	return len(s.Scenes)
}

// Characters collects every distinct character named across the bundle, in
// order of first appearance.
func (b *PromptBundle) Characters() []Character {
	if b == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Character
	for _, p := range b.ScenePrompts {
		for _, c := range p.Characters {
			key := c.Name
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Image is an uploaded product photo.
type Image struct {
	Data     []byte
	MimeType string
}

package export

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"fashion-script-studio/internal/studio"
)

const (
	JSONContentType = "application/json"
	DocContentType  = "application/msword"
)

//go:embed templates/script.doc.html
var templateFS embed.FS

var docTemplate = template.Must(template.ParseFS(templateFS, "templates/script.doc.html"))

var whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)

type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Slug turns a product name into the file name fragment used by both exports.
func Slug(productName string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(productName, "-"))
}

// PromptsJSON serializes only the scene prompts, two-space indented.
func PromptsJSON(productName string, bundle studio.PromptBundle) (Document, error) {
	prompts := bundle.ScenePrompts
	if prompts == nil {
		prompts = []studio.ScenePrompt{}
	}

	body, err := marshalIndent(prompts)
	if err != nil {
		return Document{}, fmt.Errorf("marshal scene prompts: %w", err)
	}

	return Document{
		Filename:    "veo3-prompts-all-scenes-" + Slug(productName) + ".json",
		ContentType: JSONContentType,
		Body:        body,
	}, nil
}

// ScenePromptJSON serializes the prompt paired with one scene. A scene with
// no paired prompt yields an empty object.
func ScenePromptJSON(index int, bundle studio.PromptBundle) (Document, error) {
	body := []byte("{}")
	if p, ok := bundle.ScenePrompt(index); ok {
		raw, err := marshalIndent(p)
		if err != nil {
			return Document{}, fmt.Errorf("marshal scene %d prompt: %w", index+1, err)
		}
		body = raw
	}

	return Document{
		Filename:    fmt.Sprintf("veo3_prompt_scene_%d.json", index+1),
		ContentType: JSONContentType,
		Body:        body,
	}, nil
}

type docScene struct {
	Number       int
	Time         string
	VisualPrompt string
	Audio        string
	Prompt       template.HTML
}

type docData struct {
	Title       string
	ProductName string
	StyleLabel  string
	USPs        []string
	Scenes      []docScene
	AdsCaption  string
	Hashtags    string
}

// ScriptDoc renders the script and its prompts as Word-compatible HTML.
// Scenes without a paired prompt get an empty object.
func ScriptDoc(cfg studio.Configuration, script studio.Script, bundle studio.PromptBundle) (Document, error) {
	data := docData{
		Title:       script.Title,
		ProductName: cfg.ProductName,
		StyleLabel:  cfg.VideoStyle.Label(),
		AdsCaption:  bundle.AdsCaption,
		Hashtags:    strings.Join(bundle.Hashtags, " "),
	}
	if cfg.Vision != nil {
		data.USPs = cfg.Vision.USPHighlights
	}

	for i, sc := range script.Scenes {
		dump := []byte("{}")
		if p, ok := bundle.ScenePrompt(i); ok {
			raw, err := marshalIndent(p)
			if err != nil {
				return Document{}, fmt.Errorf("marshal scene %d prompt: %w", i+1, err)
			}
			dump = raw
		}
		data.Scenes = append(data.Scenes, docScene{
			Number:       i + 1,
			Time:         sc.Time,
			VisualPrompt: sc.VisualPrompt,
			Audio:        sc.DialogueOrText,
			Prompt:       promptBox(dump),
		})
	}

	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	if err := docTemplate.Execute(&buf, data); err != nil {
		return Document{}, fmt.Errorf("render script doc: %w", err)
	}

	return Document{
		Filename:    "kich-ban-" + Slug(cfg.ProductName) + ".doc",
		ContentType: DocContentType,
		Body:        buf.Bytes(),
	}, nil
}

func promptBox(raw []byte) template.HTML {
	s := html.EscapeString(string(raw))
	s = strings.ReplaceAll(s, "\n", "<br/>")
	s = strings.ReplaceAll(s, "  ", "&nbsp;&nbsp;")
	return template.HTML(s)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

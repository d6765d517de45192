package studio

import (
	"fmt"
	"strings"
)

type NamedOption struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

var videoStyleNames = map[VideoStyle]string{
	StyleWithDialogue: "Có lời thoại",
	StyleNoDialogue:   "Không lời thoại (Chỉ hành động)",
}

var videoTypeNames = map[VideoType]string{
	TypeSingleNarration:   "Dẫn chuyện một người",
	TypeTwoPersonDialogue: "Đối thoại hai người",
}

var languageNames = map[Language]string{
	LanguageVietnamese: "Tiếng Việt",
	LanguageEnglish:    "Tiếng Anh",
}

var accentNames = map[Accent]string{
	AccentNorthern: "Miền Bắc",
	AccentSouthern: "Miền Nam",
	AccentNone:     "Không (Tiếng Anh)",
}

func VideoStyles() []NamedOption {
	return []NamedOption{
		{Key: string(StyleWithDialogue), Name: videoStyleNames[StyleWithDialogue]},
		{Key: string(StyleNoDialogue), Name: videoStyleNames[StyleNoDialogue]},
	}
}

func VideoTypes() []NamedOption {
	return []NamedOption{
		{Key: string(TypeSingleNarration), Name: videoTypeNames[TypeSingleNarration]},
		{Key: string(TypeTwoPersonDialogue), Name: videoTypeNames[TypeTwoPersonDialogue]},
	}
}

func Languages() []NamedOption {
	return []NamedOption{
		{Key: string(LanguageVietnamese), Name: languageNames[LanguageVietnamese]},
		{Key: string(LanguageEnglish), Name: languageNames[LanguageEnglish]},
	}
}

func Accents() []NamedOption {
	return []NamedOption{
		{Key: string(AccentNorthern), Name: accentNames[AccentNorthern]},
		{Key: string(AccentSouthern), Name: accentNames[AccentSouthern]},
		{Key: string(AccentNone), Name: accentNames[AccentNone]},
	}
}

func (s VideoStyle) Label() string { return labelOr(videoStyleNames[s], string(s)) }
func (t VideoType) Label() string  { return labelOr(videoTypeNames[t], string(t)) }
func (l Language) Label() string   { return labelOr(languageNames[l], string(l)) }
func (a Accent) Label() string     { return labelOr(accentNames[a], string(a)) }

func ParseVideoStyle(value string) (VideoStyle, error) {
	v := VideoStyle(normalizeKey(value))
	if _, ok := videoStyleNames[v]; !ok {
		return "", fmt.Errorf("unknown video style %q", value)
	}
	return v, nil
}

func ParseVideoType(value string) (VideoType, error) {
	v := VideoType(normalizeKey(value))
	if _, ok := videoTypeNames[v]; !ok {
		return "", fmt.Errorf("unknown video type %q", value)
	}
	return v, nil
}

func ParseLanguage(value string) (Language, error) {
	v := Language(normalizeKey(value))
	if _, ok := languageNames[v]; !ok {
		return "", fmt.Errorf("unknown language %q", value)
	}
	return v, nil
}

func ParseAccent(value string) (Accent, error) {
	v := Accent(normalizeKey(value))
	if _, ok := accentNames[v]; !ok {
		return "", fmt.Errorf("unknown accent %q", value)
	}
	return v, nil
}

// DescribeVision renders the editable product description that is filled in
// after an image has been analyzed.
func DescribeVision(v VisionAnalysis, lang Language) string {
	var b strings.Builder
	if lang == LanguageEnglish {
		b.WriteString(fmt.Sprintf("A %s piece in %s style with a %s color palette. Suited for ages %s. Tone: %s. \n\nHighlights:\n- ",
			v.Category, v.Style, v.ColorTone, v.TargetAge, v.BrandTone))
	} else {
		b.WriteString(fmt.Sprintf("Một %s phong cách %s với tông màu %s. Phù hợp cho độ tuổi %s. Tone: %s. \n\nĐiểm nổi bật:\n- ",
			v.Category, v.Style, v.ColorTone, v.TargetAge, v.BrandTone))
	}
	b.WriteString(strings.Join(v.USPHighlights, "\n- "))
	return b.String()
}

// Normalize clamps tone scores into 0..100 and drops blank highlights.
func (v *VisionAnalysis) Normalize() {
	for i := range v.ToneScores {
		switch {
		case v.ToneScores[i].Value < 0:
			v.ToneScores[i].Value = 0
		case v.ToneScores[i].Value > 100:
			v.ToneScores[i].Value = 100
		}
	}
	highlights := v.USPHighlights[:0]
	for _, h := range v.USPHighlights {
		if h = strings.TrimSpace(h); h != "" {
			highlights = append(highlights, h)
		}
	}
	v.USPHighlights = highlights
}

func normalizeKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}

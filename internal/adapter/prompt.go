package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"fashion-script-studio/internal/studio"
)

const systemInstruction = `You are a senior creative director for fashion e-commerce video ads.
You write short-form vertical video concepts for TikTok, Reels and Shorts.
Always answer with valid JSON only. No markdown, no commentary.`

const requestedScripts = 5

func buildVisionPrompt(lang studio.Language) string {
	var b strings.Builder
	b.Grow(1024)

	b.WriteString("TASK: Analyze the attached fashion product photo for an ad campaign.\n\n")
	writeSection(&b, "Return one JSON object with exactly these fields", []string{
		`"category": product category (e.g. dress, sneakers, handbag)`,
		`"color_tone": dominant palette`,
		`"style": fashion style`,
		`"target_age": target age range, e.g. "18-25"`,
		`"brand_tone": brand voice the product suggests`,
		`"usp_highlights": array of exactly 5 short selling points`,
		`"tone_scores": array of {"name": string, "value": number 0-100} rating brand tone dimensions (e.g. Luxury, Youthful, Minimal, Bold, Playful)`,
	})
	b.WriteString("\n")
	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("- Write every string value in " + languageName(lang) + ".\n")
	b.WriteString("- Keep field names in English exactly as listed.\n")
	b.WriteString("- JSON only.\n")

	return strings.TrimSpace(b.String())
}

func buildScriptsPrompt(cfg studio.Configuration) string {
	var b strings.Builder
	b.Grow(4096)

	b.WriteString(fmt.Sprintf("TASK: Create %d different 30-second video ad scripts for one fashion product.\n\n", requestedScripts))

	b.WriteString("PRODUCT:\n")
	b.WriteString("- Name: " + strings.TrimSpace(cfg.ProductName) + "\n")
	if d := strings.TrimSpace(cfg.ProductDescription); d != "" {
		b.WriteString("- Description: " + d + "\n")
	}
	if cfg.Vision != nil {
		if raw, err := json.Marshal(cfg.Vision); err == nil {
			b.WriteString("- Vision data: " + string(raw) + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("FORMAT:\n")
	b.WriteString("- Video type: " + videoTypeDirection(cfg.VideoType) + "\n")
	b.WriteString("- Language: " + languageName(cfg.Language) + "\n")
	if accent := accentDirection(cfg.Accent); accent != "" && cfg.Language == studio.LanguageVietnamese {
		b.WriteString("- Voice accent: " + accent + "\n")
	}
	b.WriteString("\n")

	switch cfg.VideoStyle.DialoguePolicy() {
	case studio.PolicyOverlayOnly:
		writeSection(&b, "DIALOGUE POLICY (STRICT): overlay text only", []string{
			"Do NOT write any spoken dialogue or voice-over lines.",
			"dialogue_or_text must contain on-screen overlay text only.",
			"cta_voice must be an empty string.",
			"Tell the story through action, camera and music.",
		})
	default:
		writeSection(&b, "DIALOGUE POLICY: spoken dialogue", []string{
			"Write natural spoken lines in dialogue_or_text that fit the voice and accent.",
			"Keep each line short enough to be spoken within its scene time.",
		})
	}
	b.WriteString("\n")

	writeSection(&b, "Each script is an object with", []string{
		`"id": short unique identifier`,
		`"title": concept name`,
		`"hook": first-3-seconds hook`,
		`"scenes": array of {"time": "0-3s", "action", "dialogue_or_text", "camera_angle", "visual_prompt", "music"} in temporal order, covering 30 seconds`,
		`"benefits_highlighted": array of product benefits shown`,
		`"cta_overlay": call-to-action overlay text`,
		`"cta_voice": spoken call-to-action`,
		`"rationale": why this concept sells the product`,
	})
	b.WriteString("\n")

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString(fmt.Sprintf("- Return a JSON array of %d scripts.\n", requestedScripts))
	b.WriteString("- Write every string value in " + languageName(cfg.Language) + ", except visual_prompt which is in English.\n")
	b.WriteString("- JSON only.\n")

	return strings.TrimSpace(b.String())
}

func buildScenePromptsPrompt(script studio.Script, cfg studio.Configuration) string {
	var b strings.Builder
	b.Grow(4096)

	n := len(script.Scenes)
	b.WriteString(fmt.Sprintf("TASK: Write Veo 3 video generation prompts for the %d scenes of the script below.\n\n", n))

	b.WriteString("PRODUCT:\n")
	b.WriteString("- Name: " + strings.TrimSpace(cfg.ProductName) + "\n")
	if d := strings.TrimSpace(cfg.ProductDescription); d != "" {
		b.WriteString("- Description: " + d + "\n")
	}
	b.WriteString("\n")

	if raw, err := json.Marshal(script); err == nil {
		b.WriteString("SCRIPT:\n")
		b.WriteString(string(raw))
		b.WriteString("\n\n")
	}

	writeSection(&b, "Each scene prompt is an object with", []string{
		`"description", "style", "camera", "lighting", "environment"`,
		`"characters": array of {"name", "age", "gender", "ethnicity", "appearance": {"hair", "expression", "outfit"}}`,
		`"motion", "dialogue": array of spoken lines, "ending", "text": on-screen text`,
		`"keywords": array of strings, "aspect_ratio": "9:16"`,
	})
	writeSection(&b, "Consistency", []string{
		"Reuse the same characters with identical names and appearance across scenes.",
		"Keep the product look identical in every scene.",
	})
	if cfg.VideoStyle.DialoguePolicy() == studio.PolicyOverlayOnly {
		writeSection(&b, "Dialogue", []string{"No spoken lines: dialogue must be an empty array."})
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("- Return one JSON object: {\"scenePrompts\": [...], \"adsCaption\": string, \"hashtags\": [string], \"ctaVariations\": [string]}.\n")
	b.WriteString(fmt.Sprintf("- scenePrompts must contain exactly %d items, one per scene, in scene order.\n", n))
	b.WriteString("- Prompt fields are in English; adsCaption, hashtags and ctaVariations are in " + languageName(cfg.Language) + ".\n")
	b.WriteString("- JSON only.\n")

	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, line := range lines {
		b.WriteString("  - " + line + "\n")
	}
}

func languageName(lang studio.Language) string {
	if lang == studio.LanguageEnglish {
		return "English"
	}
	return "Vietnamese"
}

func videoTypeDirection(t studio.VideoType) string {
	if t == studio.TypeTwoPersonDialogue {
		return "two-person dialogue, two characters talking to each other"
	}
	return "single narrator speaking to camera or as voice-over"
}

func accentDirection(a studio.Accent) string {
	switch a {
	case studio.AccentNorthern:
		return "Northern Vietnamese (Hanoi)"
	case studio.AccentSouthern:
		return "Southern Vietnamese (Saigon)"
	}
	return ""
}

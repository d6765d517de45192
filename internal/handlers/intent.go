package handlers

import "strings"

type intent int

const (
	intentNone intent = iota
	intentScripts
	intentPrompts
	intentBack
	intentReset
	intentHelp
)

// Short phrases only: anything longer is product text, not a command.
const maxIntentRunes = 32

var intentKeywords = []struct {
	intent   intent
	keywords []string
}{
	{intentPrompts, []string{"tạo prompt", "prompt veo", "veo", "prompts"}},
	{intentScripts, []string{"tạo kịch bản", "kịch bản", "kich ban", "scripts", "script"}},
	{intentBack, []string{"quay lại", "quay lai", "back"}},
	{intentReset, []string{"làm lại", "lam lai", "bắt đầu lại", "reset"}},
	{intentHelp, []string{"hướng dẫn", "huong dan", "trợ giúp", "help"}},
}

func detectIntent(text string) intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || len([]rune(t)) > maxIntentRunes {
		return intentNone
	}

	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(t, kw) {
				return group.intent
			}
		}
	}
	return intentNone
}

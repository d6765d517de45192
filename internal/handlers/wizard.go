package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fashion-script-studio/internal/export"
	"fashion-script-studio/internal/metrics"
	"fashion-script-studio/internal/studio"
	"fashion-script-studio/internal/workflow"
)

const callbackPrefix = "fs"

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}

	ownerID, action, arg, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "Menu này không dành cho bạn.", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	h.rememberMessage(chatID, ownerID, q.Message.MessageID)

	sess := h.sessions.ForChat(chatID, ownerID)

	switch action {
	case "style":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.patchEdit(chatID, ownerID, sess, workflow.ConfigPatch{VideoStyle: &arg})
	case "type":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.patchEdit(chatID, ownerID, sess, workflow.ConfigPatch{VideoType: &arg})
	case "lang":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.patchEdit(chatID, ownerID, sess, workflow.ConfigPatch{Language: &arg})
	case "accent":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.patchEdit(chatID, ownerID, sess, workflow.ConfigPatch{Accent: &arg})
	case "name":
		_ = h.tg.AnswerCallback(q.ID, "Nhập tên sản phẩm", false)
		h.setAwaiting(chatID, ownerID, awaitName)
		return h.tg.SendText(chatID, "✏️ Nhập tên sản phẩm (huỷ: /cancel).")
	case "desc":
		_ = h.tg.AnswerCallback(q.ID, "Nhập mô tả", false)
		h.setAwaiting(chatID, ownerID, awaitDesc)
		return h.tg.SendText(chatID, "✏️ Nhập mô tả sản phẩm (huỷ: /cancel).")
	case "key":
		_ = h.tg.AnswerCallback(q.ID, "Nhập API Key", false)
		h.setAwaiting(chatID, ownerID, awaitKey)
		return h.tg.SendText(chatID, "🔑 Gửi Gemini API Key của bạn (huỷ: /cancel).")
	case "scripts":
		_ = h.tg.AnswerCallback(q.ID, "Đang tạo kịch bản…", false)
		return h.generateScripts(ctx, chatID, ownerID, sess)
	case "pick":
		st := sess.Snapshot()
		idx, err := strconv.Atoi(arg)
		if err != nil || idx < 0 || idx >= len(st.Scripts) {
			_ = h.tg.AnswerCallback(q.ID, "Kịch bản không tồn tại.", true)
			return nil
		}
		_ = h.tg.AnswerCallback(q.ID, "Đã chọn kịch bản "+strconv.Itoa(idx+1), false)
		if err := h.wf.SelectScript(sess, st.Scripts[idx].ID); err != nil {
			return h.act(chatID, ownerID, sess, err)
		}
		return h.render(chatID, ownerID, true)
	case "prompts":
		_ = h.tg.AnswerCallback(q.ID, "Đang tạo prompt Veo 3…", false)
		return h.generatePrompts(ctx, chatID, ownerID, sess)
	case "back":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.act(chatID, ownerID, sess, h.wf.Back(sess))
	case "reset":
		_ = h.tg.AnswerCallback(q.ID, "Đã làm lại", false)
		h.wf.Reset(sess)
		return h.render(chatID, ownerID, true)
	case "scene":
		idx, err := strconv.Atoi(arg)
		if err != nil {
			return nil
		}
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return h.sendScene(chatID, sess.Snapshot(), idx)
	case "json", "doc":
		_ = h.tg.AnswerCallback(q.ID, "Đang xuất file…", false)
		return h.sendExport(chatID, sess.Snapshot(), action)
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		return nil
	}
}

func (h *Handler) patchEdit(chatID, userID int64, sess *workflow.Session, patch workflow.ConfigPatch) error {
	if err := h.wf.UpdateConfig(sess, patch); err != nil {
		return h.act(chatID, userID, sess, err)
	}
	return h.render(chatID, userID, true)
}

func (h *Handler) sendScene(chatID int64, st workflow.State, idx int) error {
	if st.Bundle == nil || st.SelectedScript == nil || idx < 0 || idx >= len(st.SelectedScript.Scenes) {
		return h.tg.SendText(chatID, "❌ Chưa có prompt cho cảnh này.")
	}

	doc, err := export.ScenePromptJSON(idx, *st.Bundle)
	if err != nil {
		h.logger.Error("scene export failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Không xuất được prompt.")
	}

	var b strings.Builder
	scene := st.SelectedScript.Scenes[idx]
	fmt.Fprintf(&b, "🎬 Cảnh %d (%s)\n", idx+1, scene.Time)
	if scene.Action != "" {
		fmt.Fprintf(&b, "Hành động: %s\n", scene.Action)
	}
	if p, ok := st.Bundle.ScenePrompt(idx); ok {
		for _, c := range p.Characters {
			fmt.Fprintf(&b, "👤 %s (%s, %s)\n", c.Name, c.Age, c.Gender)
		}
	}
	b.WriteString("\n")
	b.Write(doc.Body)

	metrics.ExportsTotal.WithLabelValues("scene").Inc()
	return h.tg.SendText(chatID, b.String())
}

func (h *Handler) sendExport(chatID int64, st workflow.State, format string) error {
	if st.Bundle == nil || st.SelectedScript == nil {
		return h.tg.SendText(chatID, "❌ Chưa có prompt để xuất.")
	}

	var (
		doc export.Document
		err error
	)
	if format == "json" {
		doc, err = export.PromptsJSON(st.Config.ProductName, *st.Bundle)
	} else {
		doc, err = export.ScriptDoc(st.Config, *st.SelectedScript, *st.Bundle)
	}
	if err != nil {
		h.logger.Error("export failed", "chat_id", chatID, "format", format, "err", err)
		return h.tg.SendText(chatID, "❌ Không xuất được file.")
	}

	metrics.ExportsTotal.WithLabelValues(format).Inc()
	return h.tg.SendDocument(chatID, doc.Filename, doc.Body, st.SelectedScript.Title)
}

func wizardText(st workflow.State) string {
	var b strings.Builder
	b.WriteString("🎬 Fashion Script Studio\n\n")

	switch st.Stage {
	case workflow.StageSelecting:
		b.WriteString("Bước 2/3: Chọn kịch bản\n\n")
		if len(st.Scripts) == 0 {
			b.WriteString("Không có kịch bản nào. Bấm \"Tạo lại\" để thử lần nữa.\n")
		}
		for i, s := range st.Scripts {
			mark := ""
			if s.ID == st.SelectedScriptID {
				mark = "✅ "
			}
			fmt.Fprintf(&b, "%s%d) %s (%d cảnh)\n", mark, i+1, s.Title, s.SceneCount())
			if s.Hook != "" {
				fmt.Fprintf(&b, "   Hook: %s\n", truncateLine(s.Hook, 120))
			}
		}
		if st.GeneratingPrompts {
			b.WriteString("\n⏳ Đang tạo prompt Veo 3...\n")
		}
	case workflow.StageReviewing:
		b.WriteString("Bước 3/3: Prompt Veo 3\n\n")
		if st.SelectedScript != nil {
			fmt.Fprintf(&b, "Kịch bản: %s\n", st.SelectedScript.Title)
			for i, sc := range st.SelectedScript.Scenes {
				status := "✅"
				if _, ok := st.Bundle.ScenePrompt(i); !ok {
					status = "⚠️"
				}
				fmt.Fprintf(&b, "%s Cảnh %d (%s): %s\n", status, i+1, sc.Time, truncateLine(sc.Action, 80))
			}
		}
		if st.Bundle != nil {
			if st.Bundle.AdsCaption != "" {
				fmt.Fprintf(&b, "\nCaption: %s\n", st.Bundle.AdsCaption)
			}
			if len(st.Bundle.Hashtags) > 0 {
				fmt.Fprintf(&b, "Hashtags: %s\n", strings.Join(st.Bundle.Hashtags, " "))
			}
		}
		if len(st.Characters) > 0 {
			names := make([]string, 0, len(st.Characters))
			for _, c := range st.Characters {
				names = append(names, c.Name)
			}
			fmt.Fprintf(&b, "Nhân vật: %s\n", strings.Join(names, ", "))
		}
		if st.Warning != "" {
			b.WriteString("\n⚠️ Số prompt không khớp với số cảnh.\n")
		}
	default:
		cfg := st.Config
		b.WriteString("Bước 1/3: Thông tin sản phẩm\n\n")
		fmt.Fprintf(&b, "Sản phẩm: %s\n", orDash(cfg.ProductName))
		fmt.Fprintf(&b, "Mô tả: %s\n", orDash(truncateLine(cfg.ProductDescription, 300)))
		fmt.Fprintf(&b, "Phong cách: %s\n", cfg.VideoStyle.Label())
		fmt.Fprintf(&b, "Loại video: %s\n", cfg.VideoType.Label())
		fmt.Fprintf(&b, "Ngôn ngữ: %s\n", cfg.Language.Label())
		fmt.Fprintf(&b, "Giọng: %s\n", cfg.Accent.Label())
		if cfg.Vision != nil {
			b.WriteString("Ảnh: đã phân tích ✅\n")
		} else {
			b.WriteString("Ảnh: chưa có (gửi ảnh sản phẩm)\n")
		}
		if st.Analyzing {
			b.WriteString("\n⏳ Đang phân tích ảnh...\n")
		}
		if st.GeneratingScripts {
			b.WriteString("\n⏳ Đang tạo kịch bản...\n")
		}
	}

	if !st.Authorized {
		b.WriteString("\n🔑 Chưa có API Key. Dùng /key hoặc nút bên dưới.\n")
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "\n❌ %s\n", st.LastError)
	}
	return strings.TrimSpace(b.String())
}

func wizardKeyboard(ownerID int64, st workflow.State) tgbotapi.InlineKeyboardMarkup {
	switch st.Stage {
	case workflow.StageSelecting:
		return selectKeyboard(ownerID, st)
	case workflow.StageReviewing:
		return reviewKeyboard(ownerID, st)
	default:
		return configureKeyboard(ownerID, st)
	}
}

func configureKeyboard(ownerID int64, st workflow.State) tgbotapi.InlineKeyboardMarkup {
	cfg := st.Config
	rows := [][]tgbotapi.InlineKeyboardButton{
		optionRow(ownerID, "style", studio.VideoStyles(), string(cfg.VideoStyle)),
		optionRow(ownerID, "type", studio.VideoTypes(), string(cfg.VideoType)),
		optionRow(ownerID, "lang", studio.Languages(), string(cfg.Language)),
		optionRow(ownerID, "accent", studio.Accents(), string(cfg.Accent)),
		{
			tgbotapi.NewInlineKeyboardButtonData("✏️ Tên", cb(ownerID, "name")),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Mô tả", cb(ownerID, "desc")),
		},
	}
	if !st.Authorized {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🔑 API Key", cb(ownerID, "key")),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✨ Tạo kịch bản", cb(ownerID, "scripts")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func selectKeyboard(ownerID int64, st workflow.State) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, s := range st.Scripts {
		label := strconv.Itoa(i + 1)
		if s.ID == st.SelectedScriptID {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "pick", strconv.Itoa(i))))
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if st.SelectedScriptID != "" {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🎥 Tạo prompt Veo 3", cb(ownerID, "prompts")),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🔄 Tạo lại", cb(ownerID, "scripts")),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Làm lại", cb(ownerID, "reset")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func reviewKeyboard(ownerID int64, st workflow.State) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if st.SelectedScript != nil {
		var row []tgbotapi.InlineKeyboardButton
		for i := range st.SelectedScript.Scenes {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Cảnh %d", i+1), cb(ownerID, "scene", strconv.Itoa(i))))
			if len(row) == 4 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📄 JSON", cb(ownerID, "json")),
			tgbotapi.NewInlineKeyboardButtonData("📝 Word", cb(ownerID, "doc")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Quay lại", cb(ownerID, "back")),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Làm lại", cb(ownerID, "reset")),
		},
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func optionRow(ownerID int64, action string, options []studio.NamedOption, current string) []tgbotapi.InlineKeyboardButton {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		label := opt.Name
		if opt.Key == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, action, opt.Key)))
	}
	return row
}

// cb encodes callback data as prefix:owner:action[:arg]. Telegram caps it at
// 64 bytes, so scripts are addressed by position rather than id.
func cb(ownerID int64, action string, arg ...string) string {
	parts := append([]string{callbackPrefix, strconv.FormatInt(ownerID, 10), action}, arg...)
	return strings.Join(parts, ":")
}

func parseCallback(data string) (ownerID int64, action, arg string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 4)
	if len(parts) < 3 || parts[0] != callbackPrefix {
		return 0, "", "", false
	}
	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	if len(parts) == 4 {
		arg = parts[3]
	}
	return ownerID, parts[2], arg, true
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

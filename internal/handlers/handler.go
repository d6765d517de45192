package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"fashion-script-studio/internal/logging"
	"fashion-script-studio/internal/mediagroup"
	"fashion-script-studio/internal/session"
	"fashion-script-studio/internal/studio"
	"fashion-script-studio/internal/telegram"
	"fashion-script-studio/internal/workflow"
)

// Messenger is the slice of the Telegram client the bot needs.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Options struct {
	Telegram Messenger
	Workflow *workflow.Controller
	Sessions *session.Store
	Logger   *slog.Logger
	// UIIdle drops wizard bookkeeping for chats idle this long.
	UIIdle time.Duration
}

type Handler struct {
	tg         Messenger
	wf         *workflow.Controller
	sessions   *session.Store
	logger     *slog.Logger
	ui         *cache.Cache
	aggregator *mediagroup.Aggregator
}

// chatUI tracks the wizard message and which free-text field the user is
// about to type.
type chatUI struct {
	MessageID int
	Awaiting  string
}

const (
	awaitNone = ""
	awaitName = "name"
	awaitDesc = "desc"
	awaitKey  = "key"
)

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	idle := opts.UIIdle
	if idle <= 0 {
		idle = 2 * time.Hour
	}

	return &Handler{
		tg:       opts.Telegram,
		wf:       opts.Workflow,
		sessions: opts.Sessions,
		logger:   logger,
		ui:       cache.New(idle, idle/2),
	}
}

func (h *Handler) SetAlbumAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}
	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, msg)
	}
	if msg.Text != "" {
		return h.handleText(ctx, chatID, userID, msg.Text)
	}
	return nil
}

func (h *Handler) HandleAlbum(ctx context.Context, album mediagroup.Album) {
	if err := h.processPhotos(ctx, album.ChatID, album.UserID, album.Caption, album.FileIDs); err != nil {
		h.logger.Error("album processing failed", "chat_id", album.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	sess := h.sessions.ForChat(chatID, userID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		if err := h.tg.SendText(chatID, welcomeText); err != nil {
			return err
		}
		return h.render(chatID, userID, false)
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "key":
		if args == "" {
			h.setAwaiting(chatID, userID, awaitKey)
			return h.tg.SendText(chatID, "🔑 Gửi Gemini API Key của bạn.")
		}
		return h.authorize(chatID, userID, sess, args)
	case "name":
		if args == "" {
			h.setAwaiting(chatID, userID, awaitName)
			return h.tg.SendText(chatID, "✏️ Nhập tên sản phẩm.")
		}
		return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductName: &args})
	case "desc":
		if args == "" {
			h.setAwaiting(chatID, userID, awaitDesc)
			return h.tg.SendText(chatID, "✏️ Nhập mô tả sản phẩm.")
		}
		return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductDescription: &args})
	case "scripts":
		return h.generateScripts(ctx, chatID, userID, sess)
	case "prompts":
		return h.generatePrompts(ctx, chatID, userID, sess)
	case "back":
		return h.act(chatID, userID, sess, h.wf.Back(sess))
	case "reset":
		h.wf.Reset(sess)
		return h.render(chatID, userID, false)
	case "status":
		return h.render(chatID, userID, false)
	case "cancel":
		h.setAwaiting(chatID, userID, awaitNone)
		return h.tg.SendText(chatID, "✅ Đã huỷ.")
	default:
		return h.tg.SendText(chatID, "❌ Lệnh không hợp lệ. Dùng /help.")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sess := h.sessions.ForChat(chatID, userID)

	switch h.takeAwaiting(chatID, userID) {
	case awaitKey:
		return h.authorize(chatID, userID, sess, text)
	case awaitName:
		return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductName: &text})
	case awaitDesc:
		return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductDescription: &text})
	}

	switch detectIntent(text) {
	case intentScripts:
		return h.generateScripts(ctx, chatID, userID, sess)
	case intentPrompts:
		return h.generatePrompts(ctx, chatID, userID, sess)
	case intentBack:
		return h.act(chatID, userID, sess, h.wf.Back(sess))
	case intentReset:
		h.wf.Reset(sess)
		return h.render(chatID, userID, false)
	case intentHelp:
		return h.tg.SendText(chatID, helpText)
	}

	// Loose text fills the product name first, then the description.
	st := sess.Snapshot()
	if st.Stage == workflow.StageReviewing {
		return h.tg.SendText(chatID, "ℹ️ Dùng các nút bên dưới hoặc /back để quay lại.")
	}
	if strings.TrimSpace(st.Config.ProductName) == "" {
		return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductName: &text})
	}
	return h.patch(chatID, userID, sess, workflow.ConfigPatch{ProductDescription: &text})
}

func (h *Handler) handlePhoto(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Photo{
			ChatID:  chatID,
			UserID:  userID,
			GroupID: msg.MediaGroupID,
			Caption: msg.Caption,
			FileID:  fileID,
		})
		return nil
	}

	return h.processPhotos(ctx, chatID, userID, msg.Caption, []string{fileID})
}

// processPhotos downloads the album concurrently and analyzes the largest
// photo. A caption becomes the product name when none is set yet.
func (h *Handler) processPhotos(ctx context.Context, chatID, userID int64, caption string, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	sess := h.sessions.ForChat(chatID, userID)
	h.tg.SendTyping(chatID)

	images := make([]studio.Image, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = studio.Image{Data: data, MimeType: mimeType}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Không tải được ảnh. Vui lòng gửi lại.")
	}

	best := images[0]
	for _, img := range images[1:] {
		if len(img.Data) > len(best.Data) {
			best = img
		}
	}

	if caption = strings.TrimSpace(caption); caption != "" && strings.TrimSpace(sess.Snapshot().Config.ProductName) == "" {
		if err := h.wf.UpdateConfig(sess, workflow.ConfigPatch{ProductName: &caption}); err != nil {
			h.logger.Warn("caption as product name rejected", "chat_id", chatID, "err", err)
		}
	}

	_ = h.tg.SendText(chatID, "🔍 Đang phân tích ảnh sản phẩm...")
	_ = h.render(chatID, userID, true)
	err := h.wf.AnalyzeImage(ctx, sess, best)
	return h.act(chatID, userID, sess, err)
}

func (h *Handler) generateScripts(ctx context.Context, chatID, userID int64, sess *workflow.Session) error {
	h.tg.SendTyping(chatID)
	errCh := make(chan error, 1)
	go func() { errCh <- h.wf.GenerateScripts(ctx, sess) }()
	return h.awaitAction(chatID, userID, sess, errCh)
}

func (h *Handler) generatePrompts(ctx context.Context, chatID, userID int64, sess *workflow.Session) error {
	h.tg.SendTyping(chatID)
	errCh := make(chan error, 1)
	go func() { errCh <- h.wf.GeneratePrompts(ctx, sess) }()
	return h.awaitAction(chatID, userID, sess, errCh)
}

// awaitAction shows the in-progress wizard once the call has registered,
// then re-renders with the outcome.
func (h *Handler) awaitAction(chatID, userID int64, sess *workflow.Session, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return h.act(chatID, userID, sess, err)
	case <-time.After(150 * time.Millisecond):
	}
	_ = h.render(chatID, userID, true)
	return h.act(chatID, userID, sess, <-errCh)
}

func (h *Handler) authorize(chatID, userID int64, sess *workflow.Session, key string) error {
	if err := h.wf.Authorize(sess, key); err != nil {
		return h.act(chatID, userID, sess, err)
	}
	if err := h.tg.SendText(chatID, "✅ Đã lưu API Key."); err != nil {
		return err
	}
	return h.render(chatID, userID, false)
}

func (h *Handler) patch(chatID, userID int64, sess *workflow.Session, patch workflow.ConfigPatch) error {
	return h.act(chatID, userID, sess, h.wf.UpdateConfig(sess, patch))
}

// act reports a failed action to the user, then redraws the wizard.
func (h *Handler) act(chatID, userID int64, sess *workflow.Session, err error) error {
	if err != nil {
		if errors.Is(err, workflow.ErrStaleResult) {
			return nil
		}
		if text := userMessage(err, sess.Snapshot()); text != "" {
			if sendErr := h.tg.SendText(chatID, "❌ "+text); sendErr != nil {
				return sendErr
			}
		}
	}
	return h.render(chatID, userID, false)
}

// render edits the current wizard message in place, or sends a fresh one
// when editing is not possible or a new message is wanted.
func (h *Handler) render(chatID, userID int64, edit bool) error {
	st := h.sessions.ForChat(chatID, userID).Snapshot()
	text := wizardText(st)
	kb := wizardKeyboard(userID, st)

	ui := h.uiState(chatID, userID)
	if edit && ui.MessageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, ui.MessageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.rememberMessage(chatID, userID, msgID)
	return nil
}

func (h *Handler) rememberMessage(chatID, userID int64, msgID int) {
	ui := h.uiState(chatID, userID)
	ui.MessageID = msgID
	h.ui.SetDefault(session.ChatKey(chatID, userID), ui)
}

func (h *Handler) uiState(chatID, userID int64) chatUI {
	if v, ok := h.ui.Get(session.ChatKey(chatID, userID)); ok {
		return v.(chatUI)
	}
	return chatUI{}
}

func (h *Handler) setAwaiting(chatID, userID int64, field string) {
	ui := h.uiState(chatID, userID)
	ui.Awaiting = field
	h.ui.SetDefault(session.ChatKey(chatID, userID), ui)
}

func (h *Handler) takeAwaiting(chatID, userID int64) string {
	ui := h.uiState(chatID, userID)
	field := ui.Awaiting
	if field != awaitNone {
		ui.Awaiting = awaitNone
		h.ui.SetDefault(session.ChatKey(chatID, userID), ui)
	}
	return field
}

func userMessage(err error, st workflow.State) string {
	if st.LastError != "" {
		return st.LastError
	}
	switch {
	case errors.Is(err, workflow.ErrUnauthorized), errors.Is(err, workflow.ErrCredentialRequired):
		return "Vui lòng nhập API Key bằng lệnh /key."
	case errors.Is(err, workflow.ErrProductNameRequired):
		return "Vui lòng nhập tên sản phẩm trước (/name)."
	case errors.Is(err, workflow.ErrInFlight):
		return "Đang xử lý, vui lòng đợi."
	case errors.Is(err, workflow.ErrWrongStage):
		return "Thao tác này không dùng được ở bước hiện tại."
	case errors.Is(err, workflow.ErrNoSelection):
		return "Vui lòng chọn một kịch bản."
	case errors.Is(err, workflow.ErrUnknownScript):
		return "Kịch bản không tồn tại."
	case errors.Is(err, workflow.ErrInvalidConfig):
		return "Giá trị cấu hình không hợp lệ."
	case errors.Is(err, context.DeadlineExceeded):
		return "Hết thời gian chờ. Vui lòng thử lại."
	}
	return "Đã có lỗi xảy ra. Vui lòng thử lại."
}

const welcomeText = "🎬 Fashion Script Studio\n\n" +
	"Xin chào! Gửi ảnh sản phẩm thời trang để bắt đầu.\n" +
	"Bot sẽ phân tích ảnh, viết kịch bản video ngắn và tạo prompt Veo 3 cho từng cảnh."

const helpText = "🎬 Hướng dẫn\n\n" +
	"1. Gửi ảnh sản phẩm (kèm chú thích là tên sản phẩm).\n" +
	"2. Chọn phong cách, loại video, ngôn ngữ, giọng.\n" +
	"3. Bấm \"Tạo kịch bản\" rồi chọn một kịch bản.\n" +
	"4. Bấm \"Tạo prompt Veo 3\" và tải file JSON hoặc Word.\n\n" +
	"Lệnh:\n" +
	"/key <key> - Lưu Gemini API Key\n" +
	"/name <tên> - Tên sản phẩm\n" +
	"/desc <mô tả> - Mô tả sản phẩm\n" +
	"/scripts - Tạo kịch bản\n" +
	"/prompts - Tạo prompt Veo 3\n" +
	"/back - Quay lại chọn kịch bản\n" +
	"/reset - Làm lại từ đầu\n" +
	"/status - Xem trạng thái"

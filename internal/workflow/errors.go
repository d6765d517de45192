package workflow

import "errors"

var (
	ErrUnauthorized        = errors.New("workflow: session is not authorized")
	ErrCredentialRequired  = errors.New("workflow: api key is required")
	ErrWrongStage          = errors.New("workflow: action not allowed in current stage")
	ErrInFlight            = errors.New("workflow: request already in progress")
	ErrProductNameRequired = errors.New("workflow: product name is required")
	ErrNoSelection         = errors.New("workflow: no script selected")
	ErrUnknownScript       = errors.New("workflow: unknown script id")
	ErrStaleResult         = errors.New("workflow: result discarded, session changed while waiting")
	ErrQuotaExceeded       = errors.New("workflow: generation quota exceeded")
	ErrInvalidConfig       = errors.New("workflow: invalid configuration value")
)

// User facing alerts, shown in the product's working language.
const (
	msgCredential = "Lỗi API Key. Vui lòng chọn lại Key."
	msgVision     = "Không thể phân tích ảnh. Vui lòng đảm bảo bạn đã chọn API Key hợp lệ và thử lại."
	msgScripts    = "Không thể tạo kịch bản. Vui lòng thử lại."
	msgPrompts    = "Không thể tạo prompt Veo. Vui lòng thử lại."
	msgQuota      = "Bạn đã dùng hết lượt tạo trong khoảng thời gian này. Vui lòng thử lại sau."
)

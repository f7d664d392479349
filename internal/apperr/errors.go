package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfigUpdateFailed     = errors.New("config update failed")
	ErrNetwork                = errors.New("network error")
	ErrInvalidAttachment      = errors.New("invalid attachment")
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// Local rejections: the caller's state is left untouched.
	ErrEmptySubmission  = errors.New("nothing to send")
	ErrExchangeInFlight = errors.New("an exchange is already in flight")
	ErrUpdateInFlight   = errors.New("an update for this setting is already in flight")
)

// NetworkError 描述一次失败的后端请求（传输失败或非 2xx 状态）。
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend responded %d", e.Op, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": request failed"
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigUpdate wraps err so that it matches both ErrConfigUpdateFailed and the cause.
func ConfigUpdate(setting string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfigUpdateFailed, setting, err)
}

// InvalidAttachment builds an ErrInvalidAttachment with a reason.
func InvalidAttachment(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAttachment, fmt.Sprintf(format, args...))
}

// Level 通知级别。
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient, non-blocking user notification.
type Notice struct {
	Level       Level  `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Info builds a success/informational notice.
func Info(title, description string) Notice {
	return Notice{Level: LevelInfo, Title: title, Description: description}
}

// NoticeFor maps an error from any layer to the notice shown to the user.
func NoticeFor(err error) Notice {
	switch {
	case errors.Is(err, ErrInvalidAttachment):
		return Notice{Level: LevelError, Title: "Unsupported file", Description: "Please attach an MP4, WebM or MOV video within the size limit."}
	case errors.Is(err, ErrAuthenticationRejected):
		return Notice{Level: LevelError, Title: "Invalid credentials", Description: "Please check your email and password"}
	case errors.Is(err, ErrConfigUpdateFailed):
		return Notice{Level: LevelError, Title: "Error", Description: "Failed to update settings. Please try again."}
	case errors.Is(err, ErrExchangeInFlight), errors.Is(err, ErrUpdateInFlight):
		return Notice{Level: LevelError, Title: "Please wait", Description: "The previous request is still in progress."}
	case errors.Is(err, ErrEmptySubmission):
		return Notice{Level: LevelError, Title: "Empty message", Description: "Type a message or attach a video first."}
	case errors.Is(err, ErrNetwork):
		return Notice{Level: LevelError, Title: "Error", Description: "Failed to get response. Please try again."}
	case err == nil:
		return Notice{}
	default:
		return Notice{Level: LevelError, Title: "Error", Description: err.Error()}
	}
}

// HTTPStatus maps an error to the status code used by the presentation API.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAttachment), errors.Is(err, ErrEmptySubmission):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthenticationRejected):
		return http.StatusUnauthorized
	case errors.Is(err, ErrExchangeInFlight), errors.Is(err, ErrUpdateInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrConfigUpdateFailed), errors.Is(err, ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ConnectionNotice is shown when opening a persona chat fails.
func ConnectionNotice() Notice {
	return Notice{Level: LevelError, Title: "Connection Error", Description: "Failed to connect. Please try again."}
}

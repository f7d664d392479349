package utils

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/mediafirewall/persona-voice/internal/apperr"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		log.Printf("failed to encode response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// ErrorBody is the error envelope; Notice is what the screen shows as a toast.
type ErrorBody struct {
	Error    string        `json:"error"`
	Notice   apperr.Notice `json:"notice"`
	Redirect string        `json:"redirect,omitempty"`
}

// RespondNotice 发送带提示信息的错误响应
func RespondNotice(w http.ResponseWriter, status int, err error) {
	RespondJSON(w, status, ErrorBody{Error: err.Error(), Notice: apperr.NoticeFor(err)})
}

// RespondRedirect 发送需要前端跳转的错误响应
func RespondRedirect(w http.ResponseWriter, status int, message, redirect string) {
	RespondJSON(w, status, ErrorBody{
		Error:    message,
		Notice:   apperr.Notice{Level: apperr.LevelError, Title: "Access denied", Description: message},
		Redirect: redirect,
	})
}

// ErrEmptyBody is returned by DecodeJSON for a request without a body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON 解析请求体
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return ErrEmptyBody
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

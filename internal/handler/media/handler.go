package media

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Handler serves the transient audio/video blobs the browser plays.
type Handler struct {
	blobs *playback.BlobStore
}

// New 创建媒体处理器
func New(blobs *playback.BlobStore) *Handler {
	return &Handler{blobs: blobs}
}

// RegisterRoutes 注册媒体路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/media/{token}", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.blobs.Get(chi.URLParam(r, "token"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "media released")
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	// ServeContent 处理 Range 请求，<video> 拖动需要
	http.ServeContent(w, r, "", blob.CreatedAt, bytes.NewReader(blob.Data))
}

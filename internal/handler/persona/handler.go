package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas      persona.Store
	videoMaxBytes int64
}

// New 创建persona处理器
func New(personas persona.Store, videoMaxBytes int64) *Handler {
	return &Handler{
		personas:      personas,
		videoMaxBytes: videoMaxBytes,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/{personaID}", h.handleGetPersona)
	r.Get("/languages", h.handleListLanguages)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	items := h.personas.List()
	for i := range items {
		items[i] = items[i].WithVideoLimit(h.videoMaxBytes)
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := h.personas.FindByID(chi.URLParam(r, "personaID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p.WithVideoLimit(h.videoMaxBytes))
}

// handleListLanguages 聊天页语言选项
func (h *Handler) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, exchange.LanguageOptions())
}

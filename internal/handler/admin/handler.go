package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	adminService "github.com/mediafirewall/persona-voice/internal/service/admin"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Handler 全局角色配置处理器
type Handler struct {
	svc *adminService.Service
}

// New 创建配置处理器
func New(svc *adminService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册配置路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/settings", h.handleView)
	r.Put("/admin/settings/{field}", h.handleUpdate)
}

type updateResponse struct {
	Notice apperr.Notice     `json:"notice"`
	View   adminService.View `json:"view"`
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.View())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	field, err := adminService.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		utils.RespondNotice(w, http.StatusNotFound, err)
		return
	}
	var payload struct {
		Value string `json:"value"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notice, err := h.svc.Update(r.Context(), field, payload.Value)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if errors.Is(err, adminService.ErrInvalidValue) || errors.Is(err, adminService.ErrUnknownField) {
			status = http.StatusBadRequest
		}
		utils.RespondJSON(w, status, utils.ErrorBody{Error: err.Error(), Notice: notice})
		return
	}
	utils.RespondJSON(w, http.StatusOK, updateResponse{Notice: notice, View: h.svc.View()})
}

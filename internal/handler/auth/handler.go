package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	authService "github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// SessionDiscarder drops the chat sessions opened with a token.
type SessionDiscarder interface {
	DiscardOwner(owner string) int
}

// Handler 登录/登出处理器
type Handler struct {
	auth     *authService.Service
	sessions SessionDiscarder
	logger   *zap.Logger
}

// New 创建认证处理器
func New(auth *authService.Service, sessions SessionDiscarder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, sessions: sessions, logger: logger.Named("auth-handler")}
}

type loginResponse struct {
	Token    string           `json:"token"`
	Role     authService.Role `json:"role"`
	Email    string           `json:"email"`
	Redirect string           `json:"redirect"`
}

// RegisterPublicRoutes 注册无需认证的路由
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
}

// RegisterRoutes 注册需要认证的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/me", h.handleMe)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role     string `json:"role"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ac, err := h.auth.Login(authService.ParseRole(payload.Role), payload.Email, payload.Password)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrAuthenticationRejected) {
			status = http.StatusUnauthorized
		}
		utils.RespondNotice(w, status, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Role:     ac.Role,
		Email:    ac.Email,
		Redirect: ac.Home(),
	})
}

// handleLogout 注销令牌并关闭其所有会话
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := authService.TokenFromContext(r.Context())
	discarded := h.sessions.DiscardOwner(token)
	h.auth.Logout(token)
	h.logger.Info("logout", zap.Int("sessions_discarded", discarded))
	utils.RespondJSON(w, http.StatusOK, map[string]string{"redirect": authService.HomeLogin})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ac, _ := authService.FromContext(r.Context())
	utils.RespondJSON(w, http.StatusOK, struct {
		authService.Context
		Home string `json:"home"`
	}{Context: ac, Home: ac.Home()})
}

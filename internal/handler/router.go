package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	adminHandler "github.com/mediafirewall/persona-voice/internal/handler/admin"
	authHandler "github.com/mediafirewall/persona-voice/internal/handler/auth"
	"github.com/mediafirewall/persona-voice/internal/handler/chat"
	"github.com/mediafirewall/persona-voice/internal/handler/media"
	"github.com/mediafirewall/persona-voice/internal/handler/persona"
	middlewarePkg "github.com/mediafirewall/persona-voice/internal/middleware"
	personaModel "github.com/mediafirewall/persona-voice/internal/model/persona"
	adminService "github.com/mediafirewall/persona-voice/internal/service/admin"
	authService "github.com/mediafirewall/persona-voice/internal/service/auth"
	chatService "github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Deps 路由依赖的核心服务
type Deps struct {
	Personas      personaModel.Store
	Auth          *authService.Service
	Chat          *chatService.Service
	Admin         *adminService.Service
	Hub           *chat.Hub
	Bridge        *chat.Bridge
	Blobs         *playback.BlobStore
	VideoMaxBytes int64
	Logger        *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": d.Chat.Count(),
		})
	})

	// Create handlers
	authH := authHandler.New(d.Auth, d.Chat, logger)
	personaH := persona.New(d.Personas, d.VideoMaxBytes)
	chatH := chat.New(chat.Options{
		Chat:          d.Chat,
		Hub:           d.Hub,
		Bridge:        d.Bridge,
		Blobs:         d.Blobs,
		VideoMaxBytes: d.VideoMaxBytes,
		Logger:        logger,
	})
	mediaH := media.New(d.Blobs)
	adminH := adminHandler.New(d.Admin)

	r.Route("/api", func(api chi.Router) {
		authH.RegisterPublicRoutes(api)
		// <audio>/<video> 元素无法带 Authorization 头，媒体地址本身即凭证
		mediaH.RegisterRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.Authenticate(d.Auth))
			authH.RegisterRoutes(authed)

			authed.Group(func(user chi.Router) {
				user.Use(middlewarePkg.RequireRole(authService.RoleUser))
				personaH.RegisterRoutes(user)
				chatH.RegisterRoutes(user)
			})

			authed.Group(func(admin chi.Router) {
				admin.Use(middlewarePkg.RequireRole(authService.RoleAdmin))
				adminH.RegisterRoutes(admin)
			})
		})
	})

	return r
}

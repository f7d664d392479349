package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	chatService "github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/internal/service/session"
	"github.com/mediafirewall/persona-voice/pkg/utils"
)

// Options 聊天处理器依赖
type Options struct {
	Chat          *chatService.Service
	Hub           *Hub
	Bridge        *Bridge
	Blobs         *playback.BlobStore
	VideoMaxBytes int64

	// WaitTimeout bounds ?wait=true submissions.
	WaitTimeout time.Duration
	Logger      *zap.Logger
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc       *chatService.Service
	hub           *Hub
	bridge        *Bridge
	blobs         *playback.BlobStore
	videoMaxBytes int64
	waitTimeout   time.Duration
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// New 创建聊天处理器
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	return &Handler{
		chatSvc:       opts.Chat,
		hub:           opts.Hub,
		bridge:        opts.Bridge,
		blobs:         opts.Blobs,
		videoMaxBytes: opts.VideoMaxBytes,
		waitTimeout:   wait,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("chat-handler"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDiscardSession)
			r.Get("/ws", h.handleWebSocket)
			r.Put("/input", h.handleSetInput)
			r.Put("/language", h.handleSetLanguage)
			r.Put("/attachment", h.handleStageAttachment)
			r.Delete("/attachment", h.handleClearAttachment)
			r.Post("/messages", h.handleSubmit)
			r.Post("/playback/stop", h.handleStopPlayback)
			r.Post("/messages/{messageID}/playback", h.handleTogglePlayback)
			r.Post("/messages/{messageID}/summary", h.handleToggleSummary)
			r.Post("/messages/{messageID}/references/{index}", h.handleToggleReference)
			r.Post("/media/{token}/events", h.handleMediaEvent)
		})
	})
}

// handleCreateSession 应用角色专长并创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
		Language  string `json:"language"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var language exchange.Language
	if payload.Language != "" {
		lang, err := exchange.ParseLanguage(payload.Language)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		language = lang
	}

	sess, err := h.chatSvc.CreateSession(r.Context(), owner(r), payload.PersonaID, language)
	switch {
	case err == nil:
	case errors.Is(err, chatService.ErrPersonaRequired):
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	case errors.Is(err, chatService.ErrPersonaNotFound):
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	default:
		// 留在角色选择页
		utils.RespondJSON(w, apperr.HTTPStatus(err), utils.ErrorBody{Error: err.Error(), Notice: apperr.ConnectionNotice()})
		return
	}

	id := sess.ID()
	sess.Subscribe(func(ev session.Event) {
		h.hub.Publish(id, ev.Snapshot, ev.Notice)
	})
	utils.RespondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DiscardSession(owner(r), chi.URLParam(r, "sessionID")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.SetInput(payload.Text)
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Language string `json:"language"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	language, err := exchange.ParseLanguage(payload.Language)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.SetLanguage(r.Context(), language); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

// handleStageAttachment 暂存视频，下一条消息一起发送
func (h *Handler) handleStageAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	att, err := h.readVideo(w, r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if att == nil {
		respondErr(w, apperr.InvalidAttachment("no video part"))
		return
	}
	if err := sess.StageAttachment(att); err != nil {
		h.blobs.RevokeURL(att.PlaybackURL)
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleClearAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ClearAttachment()
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSubmit 发送一条消息；默认立即返回 202，?wait=true 时等待回复
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var (
		text string
		att  *exchange.Attachment
	)
	if isMultipart(r) {
		v, err := h.readVideo(w, r)
		if err != nil {
			respondErr(w, err)
			return
		}
		att = v
		text = r.FormValue("text")
	} else {
		var payload struct {
			Text string `json:"text"`
		}
		if err := utils.DecodeJSON(r, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text = payload.Text
	}

	done, err := sess.Submit(text, att)
	if err != nil {
		if att != nil {
			h.blobs.RevokeURL(att.PlaybackURL)
		}
		respondErr(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		utils.RespondJSON(w, http.StatusAccepted, sess.Snapshot())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	select {
	case err := <-done:
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
	case <-ctx.Done():
		// 回复仍会通过 WebSocket 推送
		utils.RespondJSON(w, http.StatusAccepted, sess.Snapshot())
	}
}

func (h *Handler) handleTogglePlayback(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	if err := sess.TogglePlayback(id); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.StopPlayback()
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleToggleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	if err := sess.ToggleSummary(id); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleToggleReference(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid reference index")
		return
	}
	if err := sess.ToggleReference(id, index); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

// handleMediaEvent 浏览器播放器回报 ended/error
func (h *Handler) handleMediaEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Event string `json:"event"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.bridge.Report(sess.ID(), chi.URLParam(r, "token"), payload.Event); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session 解析当前用户拥有的会话，失败时已写响应
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.chatSvc.GetSession(owner(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return sess, true
}

// readVideo reads the optional "video" part and publishes it under a transient URL.
func (h *Handler) readVideo(w http.ResponseWriter, r *http.Request) (*exchange.Attachment, error) {
	limit := h.videoMaxBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	// 多留 1MB 给文本字段和 multipart 开销
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.InvalidAttachment("video exceeds %d bytes", limit)
		}
		return nil, apperr.InvalidAttachment("malformed upload: %v", err)
	}

	file, header, err := r.FormFile("video")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.InvalidAttachment("read video: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.InvalidAttachment("read video: %v", err)
	}
	att := &exchange.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	_, att.PlaybackURL = h.blobs.PutPinned(data, att.ContentType)
	return att, nil
}

func isMultipart(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(ct, "multipart/")
}

func messageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid message id %q", chi.URLParam(r, "messageID")))
		return 0, false
	}
	return id, true
}

func owner(r *http.Request) string {
	return auth.TokenFromContext(r.Context())
}

func respondErr(w http.ResponseWriter, err error) {
	utils.RespondNotice(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrPersonaRequired), errors.Is(err, playback.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, chatService.ErrPersonaNotFound),
		errors.Is(err, session.ErrMessageNotFound),
		errors.Is(err, ErrNoPlayer),
		errors.Is(err, playback.ErrUnknownMedia):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoAudio):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	default:
		return apperr.HTTPStatus(err)
	}
}

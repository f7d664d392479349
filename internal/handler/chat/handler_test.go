package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	chatservice "github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

type stubGateway struct{}

func (stubGateway) ExchangeText(ctx context.Context, personaID, text string) (*exchange.Response, error) {
	return &exchange.Response{Audio: []byte("audio"), AudioFormat: "mp3"}, nil
}

func (stubGateway) ExchangeTextWithVideo(ctx context.Context, personaID, text string, video *exchange.Attachment, maxBytes int64) (*exchange.Response, error) {
	return &exchange.Response{Audio: []byte("audio"), AudioFormat: "mp3"}, nil
}

func (stubGateway) SetLanguage(ctx context.Context, language exchange.Language) error { return nil }

func (stubGateway) SetExpertise(ctx context.Context, domains []exchange.Expertise) error {
	return nil
}

const testToken = "token-1"

func withToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithContext(r.Context(), testToken, auth.Context{Role: auth.RoleUser, Email: "u@x"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service, *Hub) {
	t.Helper()
	blobs := playback.NewBlobStore("/api/media")
	hub := NewHub(nil)
	bridge := NewBridge(blobs, hub, nil)
	chatSvc := chatservice.NewService(chatservice.Options{
		Gateway:   stubGateway{},
		Personas:  persona.NewMemoryStore(persona.Seed()),
		BackendID: "sunil_shetty",
		NewPlayer: bridge.NewPlayer,
		OnClose:   bridge.Forget,
	})
	t.Cleanup(chatSvc.Close)

	handler := New(Options{Chat: chatSvc, Hub: hub, Bridge: bridge, Blobs: blobs})
	r := chi.NewRouter()
	r.Use(withToken)
	handler.RegisterRoutes(r)
	return r, chatSvc, hub
}

func TestCreateSessionValidPersona(t *testing.T) {
	r, chatSvc, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(`{"personaId":"actor","language":"hindi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"language":"Hindi"`) {
		t.Fatalf("expected Hindi language in snapshot, got %s", resp.Body.String())
	}
	if chatSvc.Count() != 1 {
		t.Fatalf("expected one session, got %d", chatSvc.Count())
	}
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(`{"personaId":"non-existent"}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCreateSessionMissingPersonaID(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionUnknownLanguage(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(`{"personaId":"actor","language":"Klingon"}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestInvalidMessageID(t *testing.T) {
	r, chatSvc, _ := setupRouter(t)
	sess, err := chatSvc.CreateSession(context.Background(), testToken, "actor", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+sess.ID()+"/messages/abc/playback", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/chat/sessions/"+sess.ID()+"/messages/42/playback", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{chatservice.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: x", chatservice.ErrPersonaNotFound), http.StatusNotFound},
		{session.ErrNoAudio, http.StatusConflict},
		{session.ErrSessionClosed, http.StatusGone},
		{playback.ErrUnknownMedia, http.StatusNotFound},
		{fmt.Errorf("%w %q", playback.ErrUnknownEvent, "paused"), http.StatusBadRequest},
		{apperr.ErrExchangeInFlight, http.StatusConflict},
		{apperr.ErrEmptySubmission, http.StatusBadRequest},
		{&apperr.NetworkError{Op: "voice", Status: 500}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHubBroadcastsToSessionClients(t *testing.T) {
	r, chatSvc, hub := setupRouter(t)
	sess, err := chatSvc.CreateSession(context.Background(), testToken, "actor", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/sessions/" + sess.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first outgoingMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Type != TypeSnapshot {
		t.Fatalf("expected snapshot, got %q", first.Type)
	}
	if hub.Clients(sess.ID()) != 1 {
		t.Fatalf("expected one client, got %d", hub.Clients(sess.ID()))
	}

	hub.Commander(sess.ID()).SendCommand(playback.Command{Type: playback.CommandStop, MessageID: 7})
	hub.Broadcast("other-session", TypeNotice, apperr.Info("x", "y"))

	var cmd outgoingMessage
	if err := conn.ReadJSON(&cmd); err != nil {
		t.Fatalf("read command: %v", err)
	}
	if cmd.Type != TypeCommand {
		t.Fatalf("expected command, got %q", cmd.Type)
	}

	// 未知消息类型回复 error，不断开连接
	if err := conn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply outgoingMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Type != TypeError {
		t.Fatalf("expected error reply, got %q", reply.Type)
	}

	if err := chatSvc.DiscardSession(testToken, sess.ID()); err != nil {
		t.Fatalf("discard: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(sess.ID()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still registered after discard")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

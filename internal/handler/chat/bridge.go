package chat

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

var ErrNoPlayer = errors.New("no player for session")

// Bridge is the browser media bridge: one RemotePlayer per session, commanding the
// session's WebSocket clients and serving audio through the shared blob store.
type Bridge struct {
	blobs  *playback.BlobStore
	hub    *Hub
	logger *zap.Logger

	mu      sync.Mutex
	players map[string]*playback.RemotePlayer
}

// NewBridge creates a media bridge.
func NewBridge(blobs *playback.BlobStore, hub *Hub, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		blobs:   blobs,
		hub:     hub,
		logger:  logger,
		players: make(map[string]*playback.RemotePlayer),
	}
}

// NewPlayer is the chat service's player factory.
func (b *Bridge) NewPlayer(sessionID string) (playback.Player, error) {
	p := playback.NewRemotePlayer(b.blobs, b.hub.Commander(sessionID), b.logger.With(zap.String("session", sessionID)))
	b.mu.Lock()
	b.players[sessionID] = p
	b.mu.Unlock()
	return p, nil
}

// Report forwards a browser player event.
func (b *Bridge) Report(sessionID, token, event string) error {
	b.mu.Lock()
	p, ok := b.players[sessionID]
	b.mu.Unlock()
	if !ok {
		return ErrNoPlayer
	}
	return p.Report(token, event)
}

// Forget drops the session's player and disconnects its clients.
func (b *Bridge) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.players, sessionID)
	b.mu.Unlock()
	b.hub.CloseSession(sessionID)
}

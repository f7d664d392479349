package playback

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Command types sent to the browser.
const (
	CommandPlay       = "play"
	CommandStop       = "stop"
	CommandVideoPlay  = "video-play"
	CommandVideoPause = "video-pause"
)

// Browser-reported player events.
const (
	MediaEnded = "ended"
	MediaError = "error"
)

var (
	ErrUnknownMedia = errors.New("unknown media token")
	ErrUnknownEvent = errors.New("unknown media event")
)

// Command instructs the browser media element.
type Command struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	Token     string `json:"token,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Commander delivers commands to the browser owning a session.
type Commander interface {
	SendCommand(cmd Command)
}

// RemotePlayer plays audio in the browser: the audio is published in the blob store and
// the browser is told to play it; Done resolves from events the browser reports back.
type RemotePlayer struct {
	blobs  *BlobStore
	out    Commander
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]*remoteStream
}

// NewRemotePlayer binds a player to one browser channel.
func NewRemotePlayer(blobs *BlobStore, out Commander, logger *zap.Logger) *RemotePlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemotePlayer{
		blobs:   blobs,
		out:     out,
		logger:  logger.Named("remote-player"),
		streams: make(map[string]*remoteStream),
	}
}

func (p *RemotePlayer) Open(track Track) (Stream, error) {
	if len(track.Audio) == 0 {
		return nil, errors.New("empty audio")
	}
	token, url := p.blobs.Put(track.Audio, audioContentType(track.Format))
	s := &remoteStream{
		player: p,
		track:  track,
		token:  token,
		url:    url,
		done:   make(chan error, 1),
	}
	p.mu.Lock()
	p.streams[token] = s
	p.mu.Unlock()
	return s, nil
}

// Report applies a browser event to the stream behind token.
func (p *RemotePlayer) Report(token, event string) error {
	p.mu.Lock()
	s, ok := p.streams[token]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownMedia
	}

	switch event {
	case MediaEnded:
		s.resolve(nil)
	case MediaError:
		s.resolve(fmt.Errorf("browser failed to play message %d", s.track.MessageID))
	default:
		return fmt.Errorf("%w %q", ErrUnknownEvent, event)
	}
	return nil
}

func (p *RemotePlayer) PlayVideo(track Track) {
	p.out.SendCommand(Command{Type: CommandVideoPlay, MessageID: track.MessageID, URL: track.VideoURL})
}

func (p *RemotePlayer) PauseVideo(track Track) {
	p.out.SendCommand(Command{Type: CommandVideoPause, MessageID: track.MessageID, URL: track.VideoURL})
}

type remoteStream struct {
	player *RemotePlayer
	track  Track
	token  string
	url    string
	done   chan error
	once   sync.Once
}

func (s *remoteStream) Start() error {
	s.player.out.SendCommand(Command{Type: CommandPlay, MessageID: s.track.MessageID, Token: s.token, URL: s.url})
	return nil
}

func (s *remoteStream) Stop() {
	s.player.out.SendCommand(Command{Type: CommandStop, MessageID: s.track.MessageID, Token: s.token})
}

func (s *remoteStream) Done() <-chan error { return s.done }

func (s *remoteStream) Release() {
	s.player.mu.Lock()
	delete(s.player.streams, s.token)
	s.player.mu.Unlock()
	s.player.blobs.Revoke(s.token)
}

func (s *remoteStream) resolve(err error) {
	s.once.Do(func() { s.done <- err })
}

func audioContentType(format string) string {
	switch format {
	case "mp3", "mpeg", "":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "audio/" + format
	}
}

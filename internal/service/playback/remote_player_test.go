package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []Command
}

func (l *commandLog) SendCommand(cmd Command) {
	l.mu.Lock()
	l.cmds = append(l.cmds, cmd)
	l.mu.Unlock()
}

func (l *commandLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.cmds))
	for _, c := range l.cmds {
		out = append(out, c.Type)
	}
	return out
}

func TestRemotePlayerLifecycle(t *testing.T) {
	blobs := NewBlobStore("/api/media")
	out := &commandLog{}
	player := NewRemotePlayer(blobs, out, nil)
	c, rec := newTestCoordinator(t, player)

	require.NoError(t, c.Play(Track{MessageID: 2, Audio: []byte("mp3"), Format: "mp3"}))
	require.Len(t, out.cmds, 1)
	play := out.cmds[0]
	assert.Equal(t, CommandPlay, play.Type)
	assert.Equal(t, "/api/media/"+play.Token, play.URL)

	blob, ok := blobs.Get(play.Token)
	require.True(t, ok)
	assert.Equal(t, "audio/mpeg", blob.ContentType)

	require.NoError(t, player.Report(play.Token, MediaEnded))
	require.Eventually(t, func() bool { return len(rec.kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventKind{EventStarted, EventCompleted}, rec.kinds())

	_, ok = blobs.Get(play.Token)
	assert.False(t, ok, "url revoked after playback")
	assert.ErrorIs(t, player.Report(play.Token, MediaEnded), ErrUnknownMedia)
}

func TestRemotePlayerStopAndVideo(t *testing.T) {
	blobs := NewBlobStore("/api/media/")
	out := &commandLog{}
	player := NewRemotePlayer(blobs, out, nil)
	c := NewCoordinator(player, Options{VideoSyncDelay: time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Play(Track{MessageID: 2, Audio: []byte("a"), VideoURL: "/api/media/v"}))
	require.Eventually(t, func() bool { return len(out.types()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.Toggle(Track{MessageID: 2}))
	assert.Equal(t, []string{CommandPlay, CommandVideoPlay, CommandVideoPause, CommandStop}, out.types())
	assert.Zero(t, blobs.Len())
}

func TestRemotePlayerRejectsUnknownEvent(t *testing.T) {
	player := NewRemotePlayer(NewBlobStore("/m"), &commandLog{}, nil)
	s, err := player.Open(Track{MessageID: 1, Audio: []byte("a")})
	require.NoError(t, err)
	defer s.Release()

	token := s.(*remoteStream).token
	assert.Error(t, player.Report(token, "paused"))
	require.NoError(t, player.Report(token, MediaError))
	assert.Error(t, <-s.Done())
}

func TestBlobStoreSweep(t *testing.T) {
	store := NewBlobStore("/m")
	now := time.Now()
	store.now = func() time.Time { return now.Add(-time.Hour) }
	oldToken, _ := store.Put([]byte("old"), "video/mp4")
	store.now = func() time.Time { return now }
	_, url := store.Put([]byte("new"), "video/mp4")

	assert.Equal(t, 1, store.Sweep(30*time.Minute))
	_, ok := store.Get(oldToken)
	assert.False(t, ok)

	store.RevokeURL(url)
	assert.Zero(t, store.Len())
}

func TestBlobStoreSweepKeepsPinned(t *testing.T) {
	store := NewBlobStore("/m")
	now := time.Now()
	store.now = func() time.Time { return now.Add(-2 * time.Hour) }
	pinnedToken, pinnedURL := store.PutPinned([]byte("attached"), "video/mp4")
	store.Put([]byte("audio"), "audio/mpeg")
	store.now = func() time.Time { return now }

	assert.Equal(t, 1, store.Sweep(time.Minute))
	blob, ok := store.Get(pinnedToken)
	require.True(t, ok, "attached video outlives the sweep")
	assert.True(t, blob.Pinned)
	assert.Equal(t, "video/mp4", blob.ContentType)

	store.RevokeURL(pinnedURL)
	_, ok = store.Get(pinnedToken)
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

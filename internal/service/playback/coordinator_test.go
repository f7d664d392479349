package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStream struct {
	id       int64
	done     chan error
	started  bool
	stopped  int
	released int
}

func (s *fakeStream) Start() error       { s.started = true; return nil }
func (s *fakeStream) Stop()              { s.stopped++ }
func (s *fakeStream) Done() <-chan error { return s.done }
func (s *fakeStream) Release()           { s.released++ }

type fakePlayer struct {
	mu      sync.Mutex
	streams map[int64]*fakeStream
	openErr error
	videos  []string
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{streams: make(map[int64]*fakeStream)}
}

func (p *fakePlayer) Open(track Track) (Stream, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	s := &fakeStream{id: track.MessageID, done: make(chan error, 1)}
	p.mu.Lock()
	p.streams[track.MessageID] = s
	p.mu.Unlock()
	return s, nil
}

func (p *fakePlayer) PlayVideo(track Track) {
	p.mu.Lock()
	p.videos = append(p.videos, "play:"+track.VideoURL)
	p.mu.Unlock()
}

func (p *fakePlayer) PauseVideo(track Track) {
	p.mu.Lock()
	p.videos = append(p.videos, "pause:"+track.VideoURL)
	p.mu.Unlock()
}

func (p *fakePlayer) stream(id int64) *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[id]
}

func (p *fakePlayer) videoLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.videos...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestCoordinator(t *testing.T, player Player) (*Coordinator, *recorder) {
	t.Helper()
	c := NewCoordinator(player, Options{VideoSyncDelay: 10 * time.Millisecond})
	rec := &recorder{}
	c.AddListener(rec.listen)
	t.Cleanup(c.Close)
	return c, rec
}

func TestPlayThenNaturalCompletion(t *testing.T) {
	player := newFakePlayer()
	c, rec := newTestCoordinator(t, player)

	require.NoError(t, c.Play(Track{MessageID: 2, Audio: []byte("a")}))
	id, ok := c.Active()
	require.True(t, ok)
	assert.EqualValues(t, 2, id)

	s := player.stream(2)
	s.done <- nil

	require.Eventually(t, func() bool {
		_, playing := c.Active()
		return !playing
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []EventKind{EventStarted, EventCompleted}, rec.kinds())
	assert.Equal(t, 0, s.stopped)
	assert.Equal(t, 1, s.released)
}

func TestPlaySupersedesActive(t *testing.T) {
	player := newFakePlayer()
	c, rec := newTestCoordinator(t, player)

	require.NoError(t, c.Play(Track{MessageID: 2}))
	require.NoError(t, c.Play(Track{MessageID: 4}))

	first := player.stream(2)
	assert.Equal(t, 1, first.stopped)
	assert.Equal(t, 1, first.released)

	id, ok := c.Active()
	require.True(t, ok)
	assert.EqualValues(t, 4, id)
	assert.Equal(t, []EventKind{EventStarted, EventStopped, EventStarted}, rec.kinds())

	// late completion of the superseded stream is ignored
	first.done <- nil
	time.Sleep(20 * time.Millisecond)
	id, _ = c.Active()
	assert.EqualValues(t, 4, id)
}

func TestToggleTwiceRestoresIdle(t *testing.T) {
	player := newFakePlayer()
	c, rec := newTestCoordinator(t, player)

	require.NoError(t, c.Toggle(Track{MessageID: 2}))
	require.NoError(t, c.Toggle(Track{MessageID: 2}))

	_, ok := c.Active()
	assert.False(t, ok)
	assert.Equal(t, []EventKind{EventStarted, EventStopped}, rec.kinds())
}

func TestPlaybackFailure(t *testing.T) {
	player := newFakePlayer()
	c, rec := newTestCoordinator(t, player)

	require.NoError(t, c.Play(Track{MessageID: 2}))
	player.stream(2).done <- errors.New("decode error")

	require.Eventually(t, func() bool { return len(rec.kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, rec.kinds())
	_, ok := c.Active()
	assert.False(t, ok)
}

func TestOpenFailure(t *testing.T) {
	player := newFakePlayer()
	player.openErr = errors.New("no device")
	c, rec := newTestCoordinator(t, player)

	assert.Error(t, c.Play(Track{MessageID: 2}))
	assert.Equal(t, []EventKind{EventFailed}, rec.kinds())
}

func TestPairedVideoFollowsAudio(t *testing.T) {
	player := newFakePlayer()
	c, _ := newTestCoordinator(t, player)

	require.NoError(t, c.Play(Track{MessageID: 2, VideoURL: "/v"}))
	require.Eventually(t, func() bool { return len(player.videoLog()) == 1 }, time.Second, 2*time.Millisecond)

	c.Stop()
	assert.Equal(t, []string{"play:/v", "pause:/v"}, player.videoLog())
}

func TestPairedVideoSkippedWhenStoppedEarly(t *testing.T) {
	player := newFakePlayer()
	c := NewCoordinator(player, Options{VideoSyncDelay: time.Hour})
	defer c.Close()

	require.NoError(t, c.Play(Track{MessageID: 2, VideoURL: "/v"}))
	c.Stop()
	assert.Empty(t, player.videoLog())
}

func TestAtMostOneActive(t *testing.T) {
	player := newFakePlayer()
	c, rec := newTestCoordinator(t, player)

	for _, id := range []int64{2, 4, 2, 6, 6, 4} {
		_ = c.Toggle(Track{MessageID: id})
	}

	started, terminal := 0, 0
	for _, k := range rec.kinds() {
		if k == EventStarted {
			started++
		} else {
			terminal++
		}
	}
	_, playing := c.Active()
	if playing {
		assert.Equal(t, started-1, terminal)
	} else {
		assert.Equal(t, started, terminal)
	}
}

func TestCloseRejectsPlay(t *testing.T) {
	c := NewCoordinator(newFakePlayer(), Options{})
	require.NoError(t, c.Play(Track{MessageID: 2}))
	c.Close()

	_, ok := c.Active()
	assert.False(t, ok)
	assert.ErrorIs(t, c.Play(Track{MessageID: 4}), ErrClosed)
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/chat"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type exchangeCall struct {
	personaID string
	text      string
	video     *exchange.Attachment
}

type fakeGateway struct {
	mu        sync.Mutex
	calls     []exchangeCall
	languages []exchange.Language
	release   chan struct{}
	resp      *exchange.Response
	err       error
	langErr   error
}

func (g *fakeGateway) respond(ctx context.Context, call exchangeCall) (*exchange.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	release := g.release
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, &apperr.NetworkError{Op: "voice", Err: ctx.Err()}
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	resp := *g.resp
	return &resp, nil
}

func (g *fakeGateway) ExchangeText(ctx context.Context, personaID, text string) (*exchange.Response, error) {
	return g.respond(ctx, exchangeCall{personaID: personaID, text: text})
}

func (g *fakeGateway) ExchangeTextWithVideo(ctx context.Context, personaID, text string, video *exchange.Attachment, _ int64) (*exchange.Response, error) {
	return g.respond(ctx, exchangeCall{personaID: personaID, text: text, video: video})
}

func (g *fakeGateway) SetLanguage(_ context.Context, language exchange.Language) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.languages = append(g.languages, language)
	return g.langErr
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeStream struct {
	done chan error
}

func (s *fakeStream) Start() error       { return nil }
func (s *fakeStream) Stop()              {}
func (s *fakeStream) Done() <-chan error { return s.done }
func (s *fakeStream) Release()           {}

type fakePlayer struct {
	mu      sync.Mutex
	opened  []int64
	streams map[int64]*fakeStream
}

func (p *fakePlayer) Open(track playback.Track) (playback.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streams == nil {
		p.streams = make(map[int64]*fakeStream)
	}
	s := &fakeStream{done: make(chan error, 1)}
	p.streams[track.MessageID] = s
	p.opened = append(p.opened, track.MessageID)
	return s, nil
}

func (p *fakePlayer) openedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.opened...)
}

func (p *fakePlayer) finish(id int64, err error) {
	p.mu.Lock()
	s := p.streams[id]
	p.mu.Unlock()
	s.done <- err
}

func fitness() persona.Persona {
	for _, p := range persona.Seed() {
		if p.ID == "fitness" {
			return p
		}
	}
	panic("fitness persona missing from seed")
}

func actor() persona.Persona {
	p := persona.Seed()[0]
	if p.ID != "actor" {
		panic("unexpected seed order")
	}
	return p
}

func newTestSession(t *testing.T, p persona.Persona, gw *fakeGateway) (*Session, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	s, err := New(Options{
		ID:             "s-1",
		Persona:        p,
		Gateway:        gw,
		Player:         player,
		VideoSyncDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, player
}

func voiceReply() *exchange.Response {
	return &exchange.Response{Audio: []byte("mp3"), AudioFormat: "mp3"}
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not finish")
		return nil
	}
}

func TestSubmitAppendsUserMessageBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), resp: voiceReply()}
	s, _ := newTestSession(t, actor(), gw)

	s.SetInput("hello")
	done, err := s.Submit("  hello  ", nil)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.AuthorUser, snap.Messages[0].Author)
	assert.Equal(t, "hello", snap.Messages[0].Text)
	assert.EqualValues(t, 1, snap.Messages[0].ID)
	assert.Equal(t, chat.StateSubmitting, snap.State)
	assert.True(t, snap.Pending)
	assert.False(t, snap.CanSend)
	assert.Empty(t, snap.Input)

	close(gw.release)
	require.NoError(t, wait(t, done))
}

func TestSubmitRejections(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), resp: voiceReply()}
	s, _ := newTestSession(t, actor(), gw)

	_, err := s.Submit("   ", nil)
	assert.ErrorIs(t, err, apperr.ErrEmptySubmission)
	assert.Empty(t, s.Snapshot().Messages)

	done, err := s.Submit("first", nil)
	require.NoError(t, err)

	_, err = s.Submit("second", nil)
	assert.ErrorIs(t, err, apperr.ErrExchangeInFlight)
	assert.Len(t, s.Snapshot().Messages, 1)

	close(gw.release)
	require.NoError(t, wait(t, done))
	assert.Equal(t, 1, gw.callCount())
}

func TestSubmitSuccessAutoplays(t *testing.T) {
	gw := &fakeGateway{resp: &exchange.Response{
		Audio:       []byte("mp3"),
		AudioFormat: "mp3",
		Summary:     "Run three times a week. Sleep eight hours.",
		References:  []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "https://example.com/blog"},
	}}
	s, player := newTestSession(t, actor(), gw)

	done, err := s.Submit("How do I build endurance?", nil)
	require.NoError(t, err)
	require.NoError(t, wait(t, done))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	reply := snap.Messages[1]
	assert.Equal(t, chat.AuthorPersona, reply.Author)
	assert.Equal(t, chat.PersonaPlaceholder, reply.Text)
	assert.EqualValues(t, 2, reply.ID)
	assert.Equal(t, []string{"Run three times a week.", "Sleep eight hours."}, reply.SummaryBullets)
	require.Len(t, reply.Embeds, 1)
	assert.Equal(t, "https://www.youtube.com/embed/dQw4w9WgXcQ", reply.Embeds[0].EmbedURL)

	assert.Equal(t, []int64{2}, player.openedIDs())
	assert.EqualValues(t, 2, snap.ActiveAudioMessageID)
	assert.True(t, reply.Playing)
	assert.Equal(t, "Stop", reply.PlayLabel)
	assert.Equal(t, chat.StateIdle, snap.State)
	assert.True(t, snap.CanSend)

	assert.Equal(t, persona.DefaultBackendID, gw.calls[0].personaID)
}

func TestSubmitFailureKeepsHistory(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	s, player := newTestSession(t, actor(), gw)

	done, err := s.Submit("one", nil)
	require.NoError(t, err)
	require.NoError(t, wait(t, done))

	var notices []apperr.Notice
	var mu sync.Mutex
	s.Subscribe(func(ev Event) {
		if ev.Notice != nil {
			mu.Lock()
			notices = append(notices, *ev.Notice)
			mu.Unlock()
		}
	})

	gw.mu.Lock()
	gw.err = &apperr.NetworkError{Op: "voice", Status: 500}
	gw.mu.Unlock()

	done, err = s.Submit("two", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, done), apperr.ErrNetwork)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, chat.AuthorUser, snap.Messages[2].Author)
	assert.Equal(t, chat.StateIdle, snap.State)
	assert.Len(t, player.openedIDs(), 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notices, 1)
	assert.Equal(t, "Failed to get response. Please try again.", notices[0].Description)
}

func TestTogglePlaybackPairs(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	s, _ := newTestSession(t, actor(), gw)

	done, _ := s.Submit("hi", nil)
	require.NoError(t, wait(t, done))
	assert.EqualValues(t, 2, s.Snapshot().ActiveAudioMessageID)

	require.NoError(t, s.TogglePlayback(2))
	assert.Zero(t, s.Snapshot().ActiveAudioMessageID)
	require.NoError(t, s.TogglePlayback(2))
	assert.EqualValues(t, 2, s.Snapshot().ActiveAudioMessageID)

	assert.ErrorIs(t, s.TogglePlayback(1), ErrNoAudio)
	assert.ErrorIs(t, s.TogglePlayback(42), ErrMessageNotFound)
}

func TestHasPlayedOnlyOnNaturalCompletion(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	s, player := newTestSession(t, actor(), gw)

	done, _ := s.Submit("a", nil)
	require.NoError(t, wait(t, done))
	done, _ = s.Submit("b", nil)
	require.NoError(t, wait(t, done))

	// message 4 superseded message 2
	snap := s.Snapshot()
	assert.False(t, snap.Messages[1].HasPlayed)
	assert.EqualValues(t, 4, snap.ActiveAudioMessageID)

	require.NoError(t, s.TogglePlayback(4))
	assert.False(t, s.Snapshot().Messages[3].HasPlayed)

	require.NoError(t, s.TogglePlayback(2))
	player.finish(2, errors.New("decode"))
	require.Eventually(t, func() bool { return !s.Snapshot().Playing }, time.Second, 2*time.Millisecond)
	assert.False(t, s.Snapshot().Messages[1].HasPlayed)

	require.NoError(t, s.TogglePlayback(4))
	player.finish(4, nil)
	require.Eventually(t, func() bool { return s.Snapshot().Messages[3].HasPlayed }, time.Second, 2*time.Millisecond)
	snap = s.Snapshot()
	assert.Equal(t, "Replay", snap.Messages[3].PlayLabel)
	assert.Zero(t, snap.ActiveAudioMessageID)
}

func TestToggleSummaryAndReference(t *testing.T) {
	gw := &fakeGateway{resp: &exchange.Response{
		Audio:      []byte("a"),
		Summary:    "One. Two.",
		References: []string{"https://youtu.be/dQw4w9WgXcQ"},
	}}
	s, _ := newTestSession(t, actor(), gw)
	done, _ := s.Submit("x", nil)
	require.NoError(t, wait(t, done))

	require.NoError(t, s.ToggleSummary(2))
	require.NoError(t, s.ToggleReference(2, 0))
	msg, _ := s.Snapshot().Find(2)
	assert.True(t, msg.SummaryExpanded)
	assert.True(t, msg.Embeds[0].Expanded)

	require.NoError(t, s.ToggleSummary(2))
	msg, _ = s.Snapshot().Find(2)
	assert.False(t, msg.SummaryExpanded)

	assert.Error(t, s.ToggleReference(2, 3))
	assert.ErrorIs(t, s.ToggleSummary(9), ErrMessageNotFound)
}

func TestVideoTurnForVideoCapablePersona(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	var released []string
	player := &fakePlayer{}
	s, err := New(Options{
		ID:         "s-2",
		Persona:    fitness(),
		Gateway:    gw,
		Player:     player,
		ReleaseURL: func(url string) { released = append(released, url) },
	})
	require.NoError(t, err)

	att := &exchange.Attachment{Filename: "squat.mp4", Data: []byte("v"), PlaybackURL: "/api/media/v1"}
	require.NoError(t, s.StageAttachment(att))
	assert.Equal(t, "squat.mp4", s.Snapshot().StagedAttachment)

	done, err := s.Submit("", nil)
	require.NoError(t, err)
	require.NoError(t, wait(t, done))

	snap := s.Snapshot()
	assert.Equal(t, "[video: squat.mp4]", snap.Messages[0].Text)
	assert.Equal(t, "/api/media/v1", snap.Messages[1].AttachedVideoURL)
	assert.Empty(t, snap.StagedAttachment)
	require.NotNil(t, gw.calls[0].video)

	s.Close()
	assert.Equal(t, []string{"/api/media/v1"}, released)
}

func TestInvalidAttachmentRejected(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	text, _ := newTestSession(t, actor(), gw)

	att := &exchange.Attachment{Filename: "a.mp4", Data: []byte("v")}
	_, err := text.Submit("hi", att)
	assert.ErrorIs(t, err, apperr.ErrInvalidAttachment)
	assert.ErrorIs(t, text.StageAttachment(att), apperr.ErrInvalidAttachment)

	video, _ := newTestSession(t, fitness().WithVideoLimit(1), gw)
	_, err = video.Submit("hi", &exchange.Attachment{Filename: "a.mp4", Data: []byte("big")})
	assert.ErrorIs(t, err, apperr.ErrInvalidAttachment)
	_, err = video.Submit("hi", &exchange.Attachment{Filename: "a.gif", Data: []byte("v")})
	assert.ErrorIs(t, err, apperr.ErrInvalidAttachment)

	assert.Empty(t, text.Snapshot().Messages)
	assert.Empty(t, video.Snapshot().Messages)
	assert.Zero(t, gw.callCount())
}

func TestSetLanguageAppliedOnSuccess(t *testing.T) {
	gw := &fakeGateway{resp: voiceReply()}
	s, _ := newTestSession(t, actor(), gw)
	assert.Equal(t, "English", s.Snapshot().Language)

	require.NoError(t, s.SetLanguage(context.Background(), exchange.LanguageHindi))
	assert.Equal(t, "Hindi", s.Snapshot().Language)

	gw.langErr = apperr.ConfigUpdate("set language", errors.New("down"))
	err := s.SetLanguage(context.Background(), exchange.LanguageEnglish)
	assert.ErrorIs(t, err, apperr.ErrConfigUpdateFailed)
	assert.Equal(t, "Hindi", s.Snapshot().Language)
}

func TestCloseAbandonsInFlightExchange(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), resp: voiceReply()}
	player := &fakePlayer{}
	s, err := New(Options{ID: "s-3", Persona: actor(), Gateway: gw, Player: player})
	require.NoError(t, err)

	done, err := s.Submit("hang", nil)
	require.NoError(t, err)

	s.Close()
	assert.ErrorIs(t, wait(t, done), apperr.ErrNetwork)
	assert.Len(t, s.Snapshot().Messages, 1)
	assert.Empty(t, player.openedIDs())

	_, err = s.Submit("again", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestEmptyHint(t *testing.T) {
	s, _ := newTestSession(t, fitness(), &fakeGateway{resp: voiceReply()})
	snap := s.Snapshot()
	assert.Equal(t, "Start a conversation with Suniel Shetty – Fitness Mentor", snap.EmptyHint)
	assert.True(t, snap.AcceptsVideo)
}

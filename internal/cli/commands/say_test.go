package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

type replyGateway struct{}

func (replyGateway) ExchangeText(context.Context, string, string) (*exchange.Response, error) {
	return &exchange.Response{Audio: []byte("ID3"), AudioFormat: "mp3", Summary: "Keep going."}, nil
}

func (g replyGateway) ExchangeTextWithVideo(ctx context.Context, personaID, text string, _ *exchange.Attachment, _ int64) (*exchange.Response, error) {
	return g.ExchangeText(ctx, personaID, text)
}

func (replyGateway) SetLanguage(context.Context, exchange.Language) error { return nil }

type countingStream struct {
	mu    sync.Mutex
	stops int
	done  chan error
}

func (s *countingStream) Start() error { return nil }

func (s *countingStream) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *countingStream) Done() <-chan error { return s.done }
func (s *countingStream) Release()           {}

func (s *countingStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// countingPlayer fails the first failOpens opens, then hands out countingStreams.
type countingPlayer struct {
	mu        sync.Mutex
	failOpens int
	streams   []*countingStream
}

func (p *countingPlayer) Open(playback.Track) (playback.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOpens > 0 {
		p.failOpens--
		return nil, errors.New("no audio device")
	}
	s := &countingStream{done: make(chan error, 1)}
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *countingPlayer) opened() []*countingStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*countingStream(nil), p.streams...)
}

func submitAndWait(t *testing.T, player playback.Player) (*session.Session, int64) {
	t.Helper()
	sess, err := session.New(session.Options{
		ID:      "say",
		Persona: persona.Seed()[0],
		Gateway: replyGateway{},
		Player:  player,
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	done, err := sess.Submit("how do I stay focused?", nil)
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not finish")
	}

	reply, ok := lastReply(sess.Snapshot())
	require.True(t, ok)
	require.True(t, reply.HasAudio)
	return sess, reply.ID
}

func runPlayToEnd(sess *session.Session, messageID int64) <-chan error {
	out := make(chan error, 1)
	go func() { out <- playToEnd(context.Background(), sess, messageID) }()
	return out
}

func TestPlayToEndKeepsAutoplayedReply(t *testing.T) {
	player := &countingPlayer{}
	sess, replyID := submitAndWait(t, player)
	require.Equal(t, replyID, sess.Snapshot().ActiveAudioMessageID)

	result := runPlayToEnd(sess, replyID)
	assert.Never(t, func() bool { return len(result) > 0 }, 100*time.Millisecond, 5*time.Millisecond,
		"must wait while the reply is still playing")

	streams := player.opened()
	require.Len(t, streams, 1)
	streams[0].done <- nil

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("playToEnd did not return after completion")
	}
	assert.Zero(t, streams[0].stopCount())
	assert.Len(t, player.opened(), 1)

	reply, ok := sess.Snapshot().Find(replyID)
	require.True(t, ok)
	assert.True(t, reply.HasPlayed)
}

func TestPlayToEndReturnsWhenAlreadyPlayed(t *testing.T) {
	player := &countingPlayer{}
	sess, replyID := submitAndWait(t, player)
	player.opened()[0].done <- nil
	require.Eventually(t, func() bool {
		reply, _ := sess.Snapshot().Find(replyID)
		return reply.HasPlayed
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-runPlayToEnd(sess, replyID):
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("playToEnd blocked on a finished reply")
	}
	assert.Len(t, player.opened(), 1)
}

func TestPlayToEndRetriesFailedAutoplay(t *testing.T) {
	player := &countingPlayer{failOpens: 1}
	sess, replyID := submitAndWait(t, player)
	require.Zero(t, sess.Snapshot().ActiveAudioMessageID)
	require.Empty(t, player.opened())

	result := runPlayToEnd(sess, replyID)
	require.Eventually(t, func() bool { return len(player.opened()) == 1 }, time.Second, 5*time.Millisecond)
	player.opened()[0].done <- nil

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("playToEnd did not return after completion")
	}
	assert.Zero(t, player.opened()[0].stopCount())
}

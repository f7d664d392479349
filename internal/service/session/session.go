package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/chat"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/gateway"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrMessageNotFound = errors.New("message not found")
	ErrNoAudio         = errors.New("message has no audio")
)

// Gateway is the subset of the backend client a session needs.
type Gateway interface {
	ExchangeText(ctx context.Context, personaID, text string) (*exchange.Response, error)
	ExchangeTextWithVideo(ctx context.Context, personaID, text string, video *exchange.Attachment, maxBytes int64) (*exchange.Response, error)
	SetLanguage(ctx context.Context, language exchange.Language) error
}

// Event is published after every state mutation, in mutation order.
type Event struct {
	Snapshot chat.Snapshot
	Notice   *apperr.Notice
}

// Listener is invoked with the session lock held; it must not call back into the session.
type Listener func(Event)

// Options configures a Session.
type Options struct {
	ID        string
	Persona   persona.Persona
	BackendID string
	Language  exchange.Language
	Gateway   Gateway
	Player    playback.Player
	// VideoSyncDelay bounds the delay between audio start and paired video start.
	VideoSyncDelay time.Duration
	// ReleaseURL frees a transient URL owned by the session (attached user videos).
	ReleaseURL func(url string)
	Logger     *zap.Logger
}

type referenceKey struct {
	messageID int64
	index     int
}

// Session is one chat with one persona: ordered messages plus transient UI state.
// Every mutation happens under mu; the exchange runs on its own goroutine.
type Session struct {
	id         string
	persona    persona.Persona
	backendID  string
	gateway    Gateway
	player     *playback.Coordinator
	releaseURL func(string)
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                sync.Mutex
	nextID            int64
	messages          []chat.Message
	state             chat.ExchangeState
	active            int64
	expandedSummaries map[int64]struct{}
	expandedRefs      map[referenceKey]struct{}
	language          exchange.Language
	languageBusy      bool
	input             string
	staged            *exchange.Attachment
	listeners         []Listener
	closed            bool
}

// New creates an empty session bound to a persona.
func New(opts Options) (*Session, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if opts.Player == nil {
		return nil, errors.New("session: player is required")
	}
	if opts.Persona.ID == "" {
		return nil, errors.New("session: persona is required")
	}
	backendID := opts.BackendID
	if backendID == "" {
		backendID = persona.DefaultBackendID
	}
	language := opts.Language
	if language == "" {
		language = exchange.LanguageEnglish
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session").With(zap.String("session", opts.ID), zap.String("persona", opts.Persona.ID))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:                opts.ID,
		persona:           opts.Persona,
		backendID:         backendID,
		gateway:           opts.Gateway,
		releaseURL:        opts.ReleaseURL,
		logger:            logger,
		ctx:               ctx,
		cancel:            cancel,
		state:             chat.StateIdle,
		expandedSummaries: make(map[int64]struct{}),
		expandedRefs:      make(map[referenceKey]struct{}),
		language:          language,
	}
	s.player = playback.NewCoordinator(opts.Player, playback.Options{
		VideoSyncDelay: opts.VideoSyncDelay,
		Logger:         logger,
	})
	s.player.AddListener(s.onPlayback)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Persona returns the persona the session talks to.
func (s *Session) Persona() persona.Persona { return s.persona }

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// Snapshot renders the current state.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit appends the user turn and starts the exchange. It returns a channel that receives
// the exchange outcome once the persona turn (or the failure) has been applied. When att is
// nil the staged attachment, if any, is sent.
func (s *Session) Submit(text string, att *exchange.Attachment) (<-chan error, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if att == nil {
		att = s.staged
	}
	if text == "" && att == nil {
		return nil, apperr.ErrEmptySubmission
	}
	if s.state == chat.StateSubmitting {
		return nil, apperr.ErrExchangeInFlight
	}
	if att != nil {
		if err := s.checkAttachment(att); err != nil {
			return nil, err
		}
	}

	s.messages = append(s.messages, chat.Message{
		ID:        s.allocID(),
		Author:    chat.AuthorUser,
		Text:      userText(text, att),
		CreatedAt: time.Now().UTC(),
	})
	if s.staged != nil && s.staged != att {
		s.release(s.staged.PlaybackURL)
	}
	s.input = ""
	s.staged = nil
	s.state = chat.StateSubmitting
	s.publishLocked(nil)

	s.logger.Info("exchange submitted", zap.Bool("video", att != nil))

	done := make(chan error, 1)
	s.wg.Add(1)
	go s.runExchange(text, att, done)
	return done, nil
}

func (s *Session) checkAttachment(att *exchange.Attachment) error {
	video, ok := s.persona.AcceptsVideo()
	if !ok {
		return apperr.InvalidAttachment("%s does not accept video", s.persona.DisplayName)
	}
	return gateway.ValidateVideo(att, video.MaxBytes)
}

func userText(text string, att *exchange.Attachment) string {
	if att == nil {
		return text
	}
	tag := fmt.Sprintf("[video: %s]", att.Filename)
	if text == "" {
		return tag
	}
	return text + " " + tag
}

func (s *Session) runExchange(text string, att *exchange.Attachment, done chan<- error) {
	defer s.wg.Done()

	var (
		resp *exchange.Response
		err  error
	)
	switch capability := s.persona.Capability.(type) {
	case persona.VideoCapable:
		if att != nil {
			resp, err = s.gateway.ExchangeTextWithVideo(s.ctx, s.backendID, text, att, capability.MaxBytes)
			break
		}
		resp, err = s.gateway.ExchangeText(s.ctx, s.backendID, text)
	default:
		resp, err = s.gateway.ExchangeText(s.ctx, s.backendID, text)
	}

	track, ok := s.applyExchange(resp, att, err)
	if ok {
		if perr := s.player.Play(track); perr != nil {
			s.logger.Warn("autoplay failed", zap.Int64("message", track.MessageID), zap.Error(perr))
		}
	}
	s.settle()
	done <- err
}

// applyExchange records the exchange outcome and returns the track to autoplay on success.
func (s *Session) applyExchange(resp *exchange.Response, att *exchange.Attachment, err error) (playback.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return playback.Track{}, false
	}

	if err != nil {
		s.state = chat.StateFailed
		if att != nil {
			s.release(att.PlaybackURL)
		}
		notice := apperr.NoticeFor(err)
		s.logger.Warn("exchange failed", zap.Error(err))
		s.publishLocked(&notice)
		return playback.Track{}, false
	}

	msg := chat.Message{
		ID:          s.allocID(),
		Author:      chat.AuthorPersona,
		Text:        chat.PersonaPlaceholder,
		Audio:       resp.Audio,
		AudioFormat: resp.AudioFormat,
		Summary:     resp.Summary,
		References:  append([]string(nil), resp.References...),
		CreatedAt:   time.Now().UTC(),
	}
	if att != nil {
		msg.AttachedVideoURL = att.PlaybackURL
	}
	s.messages = append(s.messages, msg)
	s.state = chat.StateSucceeded
	s.publishLocked(nil)

	s.logger.Info("exchange succeeded",
		zap.Int64("message", msg.ID),
		zap.Int("audio_bytes", len(msg.Audio)),
		zap.Int("references", len(msg.References)))
	return trackFor(msg), true
}

func (s *Session) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = chat.StateIdle
	s.publishLocked(nil)
}

func trackFor(msg chat.Message) playback.Track {
	return playback.Track{
		MessageID: msg.ID,
		Audio:     msg.Audio,
		Format:    msg.AudioFormat,
		VideoURL:  msg.AttachedVideoURL,
	}
}

// TogglePlayback stops messageID when it is the active audio, otherwise plays it.
func (s *Session) TogglePlayback(messageID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	msg, ok := s.findLocked(messageID)
	s.mu.Unlock()

	if !ok {
		return ErrMessageNotFound
	}
	if !msg.HasAudio() {
		return ErrNoAudio
	}
	return s.player.Toggle(trackFor(msg))
}

// StopPlayback silences whatever is playing.
func (s *Session) StopPlayback() {
	s.player.Stop()
}

// onPlayback applies coordinator events. Called with the coordinator lock held.
func (s *Session) onPlayback(ev playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notice *apperr.Notice
	switch ev.Kind {
	case playback.EventStarted:
		s.active = ev.MessageID
	case playback.EventCompleted:
		for i := range s.messages {
			if s.messages[i].ID == ev.MessageID {
				s.messages[i].HasPlayed = true
				break
			}
		}
		if s.active == ev.MessageID {
			s.active = 0
		}
	case playback.EventFailed:
		if s.active == ev.MessageID {
			s.active = 0
		}
		n := apperr.Notice{Level: apperr.LevelError, Title: "Playback failed", Description: "Could not play the voice response."}
		notice = &n
	case playback.EventStopped:
		if s.active == ev.MessageID {
			s.active = 0
		}
	}
	if !s.closed {
		s.publishLocked(notice)
	}
}

// ToggleSummary expands or collapses the summary of messageID.
func (s *Session) ToggleSummary(messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findLocked(messageID); !ok {
		return ErrMessageNotFound
	}
	if _, ok := s.expandedSummaries[messageID]; ok {
		delete(s.expandedSummaries, messageID)
	} else {
		s.expandedSummaries[messageID] = struct{}{}
	}
	s.publishLocked(nil)
	return nil
}

// ToggleReference expands or collapses reference index of messageID.
func (s *Session) ToggleReference(messageID int64, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.findLocked(messageID)
	if !ok {
		return ErrMessageNotFound
	}
	if index < 0 || index >= len(msg.References) {
		return fmt.Errorf("reference %d of message %d: %w", index, messageID, ErrMessageNotFound)
	}
	key := referenceKey{messageID: messageID, index: index}
	if _, ok := s.expandedRefs[key]; ok {
		delete(s.expandedRefs, key)
	} else {
		s.expandedRefs[key] = struct{}{}
	}
	s.publishLocked(nil)
	return nil
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
	s.publishLocked(nil)
}

// StageAttachment validates and stages a video for the next submission.
func (s *Session) StageAttachment(att *exchange.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAttachment(att); err != nil {
		return err
	}
	if s.staged != nil && s.staged.PlaybackURL != "" && s.staged.PlaybackURL != att.PlaybackURL {
		s.release(s.staged.PlaybackURL)
	}
	s.staged = att
	s.publishLocked(nil)
	return nil
}

// ClearAttachment drops the staged video.
func (s *Session) ClearAttachment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return
	}
	s.release(s.staged.PlaybackURL)
	s.staged = nil
	s.publishLocked(nil)
}

// SetLanguage switches the reply language; the selection changes only once the backend
// accepted it.
func (s *Session) SetLanguage(ctx context.Context, language exchange.Language) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.languageBusy {
		s.mu.Unlock()
		return apperr.ErrUpdateInFlight
	}
	s.languageBusy = true
	s.mu.Unlock()

	err := s.gateway.SetLanguage(ctx, language)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.languageBusy = false
	if err != nil {
		notice := apperr.NoticeFor(err)
		s.publishLocked(&notice)
		return err
	}
	s.language = language
	notice := apperr.Info("Language updated", fmt.Sprintf("Responses will be in %s", language))
	s.publishLocked(&notice)
	return nil
}

// Close stops playback, abandons the in-flight exchange and releases transient URLs.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = nil
	urls := make([]string, 0, len(s.messages)+1)
	for _, m := range s.messages {
		if m.AttachedVideoURL != "" {
			urls = append(urls, m.AttachedVideoURL)
		}
	}
	if s.staged != nil && s.staged.PlaybackURL != "" {
		urls = append(urls, s.staged.PlaybackURL)
	}
	s.mu.Unlock()

	s.cancel()
	s.player.Close()
	s.wg.Wait()

	for _, u := range urls {
		s.release(u)
	}
	s.logger.Info("session closed")
}

func (s *Session) release(url string) {
	if url != "" && s.releaseURL != nil {
		s.releaseURL(url)
	}
}

func (s *Session) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Session) findLocked(id int64) (chat.Message, bool) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

func (s *Session) publishLocked(notice *apperr.Notice) {
	if len(s.listeners) == 0 {
		return
	}
	ev := Event{Snapshot: s.snapshotLocked(), Notice: notice}
	for _, l := range s.listeners {
		if l != nil {
			l(ev)
		}
	}
}

func (s *Session) snapshotLocked() chat.Snapshot {
	_, acceptsVideo := s.persona.AcceptsVideo()
	snap := chat.Snapshot{
		SessionID:            s.id,
		PersonaID:            s.persona.ID,
		PersonaName:          s.persona.DisplayName,
		AcceptsVideo:         acceptsVideo,
		Language:             string(s.language),
		State:                s.state,
		Pending:              s.state == chat.StateSubmitting,
		CanSend:              s.state != chat.StateSubmitting && !s.closed,
		Input:                s.input,
		ActiveAudioMessageID: s.active,
		Playing:              s.active != 0,
		Messages:             make([]chat.MessageView, 0, len(s.messages)),
	}
	if s.staged != nil {
		snap.StagedAttachment = s.staged.Filename
	}
	if len(s.messages) == 0 {
		snap.EmptyHint = "Start a conversation with " + s.persona.DisplayName
	}

	for _, m := range s.messages {
		view := chat.MessageView{
			ID:               m.ID,
			Author:           m.Author,
			Text:             m.Text,
			HasAudio:         m.HasAudio(),
			HasPlayed:        m.HasPlayed,
			Playing:          m.ID == s.active,
			Summary:          m.Summary,
			AttachedVideoURL: m.AttachedVideoURL,
		}
		if view.HasAudio {
			view.PlayLabel = playLabel(view.Playing, m.HasPlayed)
		}
		if m.Summary != "" {
			view.SummaryBullets = SplitSummary(m.Summary)
			_, view.SummaryExpanded = s.expandedSummaries[m.ID]
		}
		id := m.ID
		view.Embeds = embedsFor(m.References, func(index int) bool {
			_, ok := s.expandedRefs[referenceKey{messageID: id, index: index}]
			return ok
		})
		snap.Messages = append(snap.Messages, view)
	}
	return snap
}

func playLabel(playing, played bool) string {
	switch {
	case playing:
		return "Stop"
	case played:
		return "Replay"
	default:
		return "Play"
	}
}

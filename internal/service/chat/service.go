package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Gateway is what the chat service needs from the backend client.
type Gateway interface {
	session.Gateway
	SetExpertise(ctx context.Context, domains []exchange.Expertise) error
}

// PlayerFactory creates the audio player of a new session.
type PlayerFactory func(sessionID string) (playback.Player, error)

// Options 聊天服务依赖。
type Options struct {
	Gateway        Gateway
	Personas       persona.Store
	BackendID      string
	VideoMaxBytes  int64
	VideoSyncDelay time.Duration
	NewPlayer      PlayerFactory
	ReleaseURL     func(url string)

	// OnClose runs after a session has been closed and forgotten.
	OnClose func(sessionID string)
	Logger  *zap.Logger
}

type entry struct {
	owner     string
	session   *session.Session
	createdAt time.Time
}

// Service owns the live chat sessions, each bound to the auth token that opened it.
type Service struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]entry
}

// NewService bootstraps the in-memory chat service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		opts:     opts,
		logger:   logger.Named("chat"),
		sessions: make(map[string]entry),
	}
}

// CreateSession applies the persona's expertise globally and opens an empty session.
// When the backend rejects the expertise no session is created.
func (s *Service) CreateSession(ctx context.Context, owner, personaID string, language exchange.Language) (*session.Session, error) {
	if personaID == "" {
		return nil, ErrPersonaRequired
	}
	p, ok := s.opts.Personas.FindByID(personaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}
	p = p.WithVideoLimit(s.opts.VideoMaxBytes)

	if err := s.opts.Gateway.SetExpertise(ctx, []exchange.Expertise{p.Expertise}); err != nil {
		s.logger.Warn("apply persona expertise failed", zap.String("persona", p.ID), zap.Error(err))
		return nil, err
	}
	if language != "" {
		if err := s.opts.Gateway.SetLanguage(ctx, language); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	player, err := s.opts.NewPlayer(id)
	if err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}

	sess, err := session.New(session.Options{
		ID:             id,
		Persona:        p,
		BackendID:      s.opts.BackendID,
		Language:       language,
		Gateway:        s.opts.Gateway,
		Player:         player,
		VideoSyncDelay: s.opts.VideoSyncDelay,
		ReleaseURL:     s.opts.ReleaseURL,
		Logger:         s.logger,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = entry{owner: owner, session: sess, createdAt: time.Now().UTC()}
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session", id), zap.String("persona", p.ID))
	return sess, nil
}

// GetSession retrieves a session owned by owner.
func (s *Service) GetSession(owner, sessionID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.owner != owner {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// DiscardSession closes and forgets one session.
func (s *Service) DiscardSession(owner, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok || e.owner != owner {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.closeSession(e.session)
	return nil
}

// DiscardOwner closes every session of owner, e.g. on logout.
func (s *Service) DiscardOwner(owner string) int {
	s.mu.Lock()
	var closing []*session.Session
	for id, e := range s.sessions {
		if e.owner == owner {
			closing = append(closing, e.session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range closing {
		s.closeSession(sess)
	}
	return len(closing)
}

// Count reports the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close discards every session.
func (s *Service) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]entry)
	s.mu.Unlock()

	for _, e := range all {
		s.closeSession(e.session)
	}
}

func (s *Service) closeSession(sess *session.Session) {
	sess.Close()
	if s.opts.OnClose != nil {
		s.opts.OnClose(sess.ID())
	}
}

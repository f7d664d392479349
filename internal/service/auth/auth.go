package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
)

// Role 登录身份。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Screen paths each role lands on.
const (
	HomeLogin    = "/"
	HomePersonas = "/personas"
	HomeAdmin    = "/admin"
)

// ParseRole maps free-form input to a role; anything but "admin" is a user.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Context is the explicit authentication state handed to every screen.
type Context struct {
	Role  Role   `json:"role"`
	Email string `json:"email"`
}

// Authenticated reports whether the context belongs to a signed-in user.
func (c Context) Authenticated() bool { return c.Role != "" }

// IsAdmin reports whether the context may reach the admin screen.
func (c Context) IsAdmin() bool { return c.Role == RoleAdmin }

// Home is the screen the context lands on after login.
func (c Context) Home() string {
	switch c.Role {
	case RoleAdmin:
		return HomeAdmin
	case RoleUser:
		return HomePersonas
	default:
		return HomeLogin
	}
}

// Credentials is one fixed email/password pair.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) matches(email, password string) bool {
	if c.Email == "" {
		return false
	}
	emailOK := strings.EqualFold(strings.TrimSpace(email), c.Email)
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return emailOK && passOK
}

type session struct {
	ctx       Context
	createdAt time.Time
}

// Service checks the fixed credential pairs and tracks issued bearer tokens.
type Service struct {
	user   Credentials
	admin  Credentials
	logger *zap.Logger

	mu     sync.RWMutex
	tokens map[string]session
}

// NewService builds an auth service for the user and admin credential pairs.
func NewService(user, admin Credentials, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		user:   user,
		admin:  admin,
		logger: logger.Named("auth"),
		tokens: make(map[string]session),
	}
}

// Verify checks credentials for role without issuing a token.
func (s *Service) Verify(role Role, email, password string) (Context, error) {
	creds := s.user
	if role == RoleAdmin {
		creds = s.admin
	}
	if !creds.matches(email, password) {
		s.logger.Info("login rejected", zap.String("role", string(role)))
		return Context{}, apperr.ErrAuthenticationRejected
	}
	return Context{Role: role, Email: creds.Email}, nil
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(role Role, email, password string) (string, Context, error) {
	ac, err := s.Verify(role, email, password)
	if err != nil {
		return "", Context{}, err
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = session{ctx: ac, createdAt: time.Now().UTC()}
	s.mu.Unlock()

	s.logger.Info("login accepted", zap.String("role", string(role)))
	return token, ac, nil
}

// Resolve returns the context behind token.
func (s *Service) Resolve(token string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.tokens[token]
	return sess.ctx, ok
}

// Logout revokes token.
func (s *Service) Logout(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	delete(s.tokens, token)
	return ok
}

type ctxKey struct{}

// WithContext stores the auth context and its token on ctx.
func WithContext(ctx context.Context, token string, ac Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tokenContext{token: token, ac: ac})
}

type tokenContext struct {
	token string
	ac    Context
}

// FromContext returns the auth context stored by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	v, ok := ctx.Value(ctxKey{}).(tokenContext)
	return v.ac, ok
}

// TokenFromContext returns the bearer token stored by WithContext.
func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(tokenContext)
	return v.token
}

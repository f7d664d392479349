package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
)

// Field 可配置的全局设置项。
type Field string

const (
	FieldExpertise   Field = "expertise"
	FieldHumor       Field = "humor"
	FieldExpertLevel Field = "expert-level"
)

var (
	ErrUnknownField = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

// ParseField accepts the path form ("expert-level") and a few spellings of it.
func ParseField(raw string) (Field, error) {
	switch raw {
	case "expertise":
		return FieldExpertise, nil
	case "humor":
		return FieldHumor, nil
	case "expert-level", "expert_level", "expertLevel", "level":
		return FieldExpertLevel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, raw)
}

// Label is the human name used in notices.
func (f Field) Label() string {
	switch f {
	case FieldExpertise:
		return "Expertise"
	case FieldHumor:
		return "Humor"
	case FieldExpertLevel:
		return "Expert level"
	}
	return string(f)
}

// Gateway is what the admin screen needs from the backend client.
type Gateway interface {
	SetExpertise(ctx context.Context, domains []exchange.Expertise) error
	SetHumor(ctx context.Context, humor exchange.Humor) error
	SetExpertLevel(ctx context.Context, level exchange.ExpertLevel) error
}

// Settings are the last selections the backend accepted. Empty means never set here.
type Settings struct {
	Expertise   exchange.Expertise   `json:"expertise,omitempty"`
	Humor       exchange.Humor       `json:"humor,omitempty"`
	ExpertLevel exchange.ExpertLevel `json:"expertLevel,omitempty"`
}

// View is what the admin screen renders.
type View struct {
	Settings Settings                    `json:"settings"`
	Updating map[Field]bool              `json:"updating"`
	Options  map[Field][]exchange.Option `json:"options"`
}

// Service applies global persona settings; a selection changes only after the backend
// accepted it, and each field has at most one update in flight.
type Service struct {
	gateway Gateway
	logger  *zap.Logger

	mu       sync.Mutex
	settings Settings
	busy     map[Field]bool
}

// NewService creates the admin settings service.
func NewService(gateway Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway: gateway,
		logger:  logger.Named("admin"),
		busy:    make(map[Field]bool),
	}
}

// View snapshots the current selections and in-flight flags.
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	updating := make(map[Field]bool, 3)
	for _, f := range []Field{FieldExpertise, FieldHumor, FieldExpertLevel} {
		updating[f] = s.busy[f]
	}
	return View{
		Settings: s.settings,
		Updating: updating,
		Options: map[Field][]exchange.Option{
			FieldExpertise:   exchange.ExpertiseOptions(),
			FieldHumor:       exchange.HumorOptions(),
			FieldExpertLevel: exchange.LevelOptions(),
		},
	}
}

// Update applies value to field and returns the notice to show.
func (s *Service) Update(ctx context.Context, field Field, value string) (apperr.Notice, error) {
	apply, commit, err := s.prepare(field, value)
	if err != nil {
		return apperr.NoticeFor(err), err
	}

	s.mu.Lock()
	if s.busy[field] {
		s.mu.Unlock()
		return apperr.NoticeFor(apperr.ErrUpdateInFlight), apperr.ErrUpdateInFlight
	}
	s.busy[field] = true
	s.mu.Unlock()

	err = apply(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy[field] = false
	if err != nil {
		s.logger.Warn("update failed", zap.String("field", string(field)), zap.Error(err))
		return apperr.Notice{
			Level:       apperr.LevelError,
			Title:       "Error",
			Description: "Failed to update " + strings.ToLower(field.Label()),
		}, err
	}
	commit(&s.settings)
	s.logger.Info("setting updated", zap.String("field", string(field)), zap.String("value", value))
	return apperr.Info("Success", field.Label()+" updated globally"), nil
}

func (s *Service) prepare(field Field, value string) (func(context.Context) error, func(*Settings), error) {
	switch field {
	case FieldExpertise:
		v, err := exchange.ParseExpertise(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return func(ctx context.Context) error { return s.gateway.SetExpertise(ctx, []exchange.Expertise{v}) },
			func(st *Settings) { st.Expertise = v }, nil
	case FieldHumor:
		v, err := exchange.ParseHumor(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return func(ctx context.Context) error { return s.gateway.SetHumor(ctx, v) },
			func(st *Settings) { st.Humor = v }, nil
	case FieldExpertLevel:
		v, err := exchange.ParseExpertLevel(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return func(ctx context.Context) error { return s.gateway.SetExpertLevel(ctx, v) },
			func(st *Settings) { st.ExpertLevel = v }, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

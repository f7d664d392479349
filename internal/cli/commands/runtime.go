package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/cli/state"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/config"
	"github.com/mediafirewall/persona-voice/internal/logging"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/gateway"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

// errAuthRequired is returned after the redirect hint has been printed.
var errAuthRequired = errors.New("authentication required")

const logFileName = "personactl.log"

// runtime wires the shared core the same way the API server does, with a local
// audio player instead of the browser bridge.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	state    *state.State
	gateway  *gateway.Client
	personas *persona.MemoryStore
}

func newRuntime() (*runtime, error) {
	// .env 可选
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := state.Load()
	if err != nil {
		return nil, err
	}

	dir, err := state.Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	// 屏幕归 TUI，日志写文件
	logger, err := logging.NewFile(cfg.Log, filepath.Join(dir, logFileName))
	if err != nil {
		return nil, err
	}

	items, err := cfg.Catalog.Personas()
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(gateway.Options{
		BaseURL:   cfg.Backend.BaseURL,
		BackendID: cfg.Backend.PersonaID,
		Timeout:   cfg.Backend.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		state:    st,
		gateway:  gw,
		personas: persona.NewMemoryStore(items),
	}, nil
}

func (rt *runtime) close() {
	_ = rt.logger.Sync()
}

func (rt *runtime) authService() *auth.Service {
	return auth.NewService(
		auth.Credentials{Email: rt.cfg.Auth.UserEmail, Password: rt.cfg.Auth.UserPassword},
		auth.Credentials{Email: rt.cfg.Auth.AdminEmail, Password: rt.cfg.Auth.AdminPassword},
		rt.logger,
	)
}

func (rt *runtime) chatService() *chat.Service {
	return chat.NewService(chat.Options{
		Gateway:        rt.gateway,
		Personas:       rt.personas,
		BackendID:      rt.cfg.Backend.PersonaID,
		VideoMaxBytes:  rt.cfg.Media.VideoMaxBytes,
		VideoSyncDelay: rt.cfg.Media.VideoSyncDelay,
		NewPlayer: func(string) (playback.Player, error) {
			return playback.NewExecPlayer(rt.cfg.Media.PlayerCommand, rt.logger)
		},
		Logger: rt.logger,
	})
}

// requireRole mirrors the screen guards: signed-out users go to login, the wrong role
// goes to its own home.
func (rt *runtime) requireRole(role auth.Role) error {
	ac := rt.state.Context()
	if ac.Role == role {
		return nil
	}
	if !ac.Authenticated() {
		ui.PrintError("not authenticated, please login first")
	} else {
		ui.PrintError("this command is not available to %s accounts", ac.Role)
	}
	fmt.Printf("\nRun '%s' to continue.\n", homeCommand(ac))
	return errAuthRequired
}

// homeCommand maps a role's home screen to the command that shows it.
func homeCommand(ac auth.Context) string {
	switch ac.Home() {
	case auth.HomeAdmin:
		return "personactl admin show"
	case auth.HomePersonas:
		return "personactl personas"
	default:
		return "personactl login"
	}
}

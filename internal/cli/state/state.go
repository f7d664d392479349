package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mediafirewall/persona-voice/internal/service/admin"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
)

// HomeEnv overrides the state directory (default ~/.personactl).
const HomeEnv = "PERSONACTL_HOME"

// State is what the terminal client remembers between runs.
type State struct {
	Authenticated bool           `yaml:"authenticated"`
	Admin         bool           `yaml:"admin"`
	Email         string         `yaml:"email,omitempty"`
	Settings      admin.Settings `yaml:"settings,omitempty"`
}

// Context derives the auth context handed to every command.
func (s State) Context() auth.Context {
	switch {
	case !s.Authenticated:
		return auth.Context{}
	case s.Admin:
		return auth.Context{Role: auth.RoleAdmin, Email: s.Email}
	default:
		return auth.Context{Role: auth.RoleUser, Email: s.Email}
	}
}

// Dir returns the state directory.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".personactl"), nil
}

// Path returns the state file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.yaml"), nil
}

// Load reads the state file; a missing file is the signed-out state.
func Load() (*State, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

// Save writes the state file, readable by the owner only.
func (s *State) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Remove deletes the state file (logout).
func Remove() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

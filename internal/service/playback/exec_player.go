package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultPlayerCommand is used when no player command is configured.
const DefaultPlayerCommand = "ffplay -nodisp -autoexit -loglevel quiet {file}"

const filePlaceholder = "{file}"

// ExecPlayer plays audio by writing it to a temp file and running an external player.
type ExecPlayer struct {
	argv   []string
	tmpDir string
	logger *zap.Logger
}

// NewExecPlayer parses command; "{file}" is replaced by the audio path, or the path is
// appended when the placeholder is absent.
func NewExecPlayer(command string, logger *zap.Logger) (*ExecPlayer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultPlayerCommand
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty player command")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecPlayer{argv: argv, logger: logger.Named("exec-player")}, nil
}

func (p *ExecPlayer) Open(track Track) (Stream, error) {
	if len(track.Audio) == 0 {
		return nil, errors.New("empty audio")
	}

	ext := track.Format
	if ext == "" {
		ext = "mp3"
	}
	f, err := os.CreateTemp(p.tmpDir, fmt.Sprintf("persona-%d-*.%s", track.MessageID, ext))
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	if _, err := f.Write(track.Audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("write audio file: %w", err)
	}

	return &execStream{
		player: p,
		path:   f.Name(),
		done:   make(chan error, 1),
		exited: make(chan struct{}),
	}, nil
}

func (p *ExecPlayer) command(path string) []string {
	out := make([]string, 0, len(p.argv)+1)
	replaced := false
	for _, arg := range p.argv {
		if strings.Contains(arg, filePlaceholder) {
			arg = strings.ReplaceAll(arg, filePlaceholder, path)
			replaced = true
		}
		out = append(out, arg)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

type execStream struct {
	player *ExecPlayer
	path   string
	done   chan error
	exited chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	release sync.Once
}

func (s *execStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("stream already started")
	}

	argv := s.player.command(s.path)
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start player %s: %w", argv[0], err)
	}
	s.cancel = cancel
	s.started = true

	go func() {
		defer close(s.exited)
		err := cmd.Wait()
		if ctx.Err() != nil {
			// killed by Stop
			return
		}
		if err != nil {
			err = fmt.Errorf("player exited: %w", err)
		}
		s.done <- err
	}()
	return nil
}

// Stop kills the player process and waits for it to exit.
func (s *execStream) Stop() {
	s.mu.Lock()
	cancel, started := s.cancel, s.started
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.exited
}

func (s *execStream) Done() <-chan error { return s.done }

func (s *execStream) Release() {
	s.release.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.player.logger.Warn("remove audio file failed", zap.String("path", s.path), zap.Error(err))
		}
	})
}

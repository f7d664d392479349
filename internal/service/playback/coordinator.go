package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultVideoSyncDelay 音频开始后启动配对视频的延迟。
const DefaultVideoSyncDelay = 300 * time.Millisecond

var ErrClosed = errors.New("playback coordinator closed")

// EventKind 播放事件类型。
type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a playback transition. Every Started is followed by exactly one of
// Completed, Failed or Stopped for the same message.
type Event struct {
	Kind      EventKind
	MessageID int64
	Err       error
}

// Listener receives events in order while the coordinator lock is held; it must not call
// back into the coordinator.
type Listener func(Event)

// Options configures a Coordinator.
type Options struct {
	VideoSyncDelay time.Duration
	Logger         *zap.Logger
}

type activeStream struct {
	track        Track
	stream       Stream
	halt         chan struct{}
	videoTimer   *time.Timer
	videoStarted bool
}

// Coordinator owns the single active audio stream of a session: Idle or Playing(id).
type Coordinator struct {
	mu         sync.Mutex
	player     Player
	videoDelay time.Duration
	logger     *zap.Logger
	listeners  []Listener
	active     *activeStream
	closed     bool
	wg         sync.WaitGroup
}

// NewCoordinator creates an idle coordinator driving player.
func NewCoordinator(player Player, opts Options) *Coordinator {
	delay := opts.VideoSyncDelay
	if delay <= 0 {
		delay = DefaultVideoSyncDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		player:     player,
		videoDelay: delay,
		logger:     logger.Named("playback"),
	}
}

// AddListener registers l for all subsequent events.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Active returns the id of the playing message.
func (c *Coordinator) Active() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	return c.active.track.MessageID, true
}

// Play stops and releases whatever is playing, then opens and starts track.
func (c *Coordinator) Play(track Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playLocked(track)
}

// Toggle stops track when it is the active one, otherwise plays it.
func (c *Coordinator) Toggle(track Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.track.MessageID == track.MessageID {
		c.finishLocked(c.active, EventStopped, nil)
		return nil
	}
	return c.playLocked(track)
}

// Stop silences the active stream, if any.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.finishLocked(c.active, EventStopped, nil)
	}
}

// Close stops playback, rejects further plays and waits for stream watchers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.active != nil {
		c.finishLocked(c.active, EventStopped, nil)
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) playLocked(track Track) error {
	if c.closed {
		return ErrClosed
	}
	if c.active != nil {
		c.finishLocked(c.active, EventStopped, nil)
	}

	stream, err := c.player.Open(track)
	if err != nil {
		c.logger.Warn("open audio failed", zap.Int64("message", track.MessageID), zap.Error(err))
		c.emitLocked(Event{Kind: EventFailed, MessageID: track.MessageID, Err: err})
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Release()
		c.logger.Warn("start audio failed", zap.Int64("message", track.MessageID), zap.Error(err))
		c.emitLocked(Event{Kind: EventFailed, MessageID: track.MessageID, Err: err})
		return err
	}

	a := &activeStream{track: track, stream: stream, halt: make(chan struct{})}
	c.active = a
	c.emitLocked(Event{Kind: EventStarted, MessageID: track.MessageID})

	if vp, ok := c.player.(VideoPlayer); ok && track.VideoURL != "" {
		a.videoTimer = time.AfterFunc(c.videoDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.active != a {
				return
			}
			a.videoStarted = true
			vp.PlayVideo(a.track)
		})
	}

	c.wg.Add(1)
	go c.watch(a)
	return nil
}

func (c *Coordinator) watch(a *activeStream) {
	defer c.wg.Done()

	select {
	case err := <-a.stream.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.active != a {
			return
		}
		if err != nil {
			c.logger.Warn("audio playback failed", zap.Int64("message", a.track.MessageID), zap.Error(err))
			c.finishLocked(a, EventFailed, err)
			return
		}
		c.finishLocked(a, EventCompleted, nil)
	case <-a.halt:
	}
}

// finishLocked moves a to its terminal state exactly once and returns to Idle.
func (c *Coordinator) finishLocked(a *activeStream, kind EventKind, err error) {
	if c.active != a {
		return
	}
	c.active = nil
	close(a.halt)

	if a.videoTimer != nil {
		a.videoTimer.Stop()
	}
	if a.videoStarted {
		if vp, ok := c.player.(VideoPlayer); ok {
			vp.PauseVideo(a.track)
		}
	}
	if kind != EventCompleted {
		a.stream.Stop()
	}
	a.stream.Release()

	c.emitLocked(Event{Kind: kind, MessageID: a.track.MessageID, Err: err})
}

func (c *Coordinator) emitLocked(ev Event) {
	c.logger.Debug("playback event", zap.Stringer("kind", ev.Kind), zap.Int64("message", ev.MessageID))
	for _, l := range c.listeners {
		l(ev)
	}
}

package playback

// Track is one playable persona reply, optionally paired with the user video of the same turn.
type Track struct {
	MessageID int64
	Audio     []byte
	Format    string
	// VideoURL is the transient playback URL of the paired user video, empty when none.
	VideoURL string
}

// Player abstracts the platform media API.
type Player interface {
	Open(track Track) (Stream, error)
}

// Stream is one opened audio resource. Done delivers nil on natural end or the playback
// error; Stop halts output synchronously; Release frees the derived URL and is idempotent.
type Stream interface {
	Start() error
	Stop()
	Done() <-chan error
	Release()
}

// VideoPlayer is implemented by players able to drive the paired user video.
type VideoPlayer interface {
	PlayVideo(track Track)
	PauseVideo(track Track)
}

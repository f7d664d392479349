package chat

import "time"

// Author 消息发送方。
type Author string

const (
	AuthorUser    Author = "user"
	AuthorPersona Author = "persona"
)

// PersonaPlaceholder is the display text of every persona turn; the payload is the audio.
const PersonaPlaceholder = "Voice response ready"

// Message is one turn of a conversation. Audio is owned by the message.
type Message struct {
	ID               int64     `json:"id"`
	Author           Author    `json:"author"`
	Text             string    `json:"text"`
	Audio            []byte    `json:"-"`
	AudioFormat      string    `json:"audioFormat,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	References       []string  `json:"references,omitempty"`
	AttachedVideoURL string    `json:"attachedVideoUrl,omitempty"`
	HasPlayed        bool      `json:"hasPlayed"`
	CreatedAt        time.Time `json:"createdAt"`
}

// HasAudio reports whether the message carries playable audio.
func (m Message) HasAudio() bool {
	return m.Author == AuthorPersona && len(m.Audio) > 0
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	out.Audio = append([]byte(nil), m.Audio...)
	out.References = append([]string(nil), m.References...)
	return out
}

package chat

// ExchangeState is the lifecycle of the in-flight exchange of a session.
type ExchangeState string

const (
	StateIdle       ExchangeState = "idle"
	StateSubmitting ExchangeState = "submitting"
	StateSucceeded  ExchangeState = "succeeded"
	StateFailed     ExchangeState = "failed"
)

// Embed is a reference URL resolved to an embeddable video.
type Embed struct {
	Index     int    `json:"index"`
	SourceURL string `json:"sourceUrl"`
	EmbedURL  string `json:"embedUrl"`
	Expanded  bool   `json:"expanded"`
}

// MessageView is a message decorated with the UI state the screens need.
type MessageView struct {
	ID               int64    `json:"id"`
	Author           Author   `json:"author"`
	Text             string   `json:"text"`
	HasAudio         bool     `json:"hasAudio"`
	HasPlayed        bool     `json:"hasPlayed"`
	Playing          bool     `json:"playing"`
	PlayLabel        string   `json:"playLabel,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	SummaryBullets   []string `json:"summaryBullets,omitempty"`
	SummaryExpanded  bool     `json:"summaryExpanded"`
	Embeds           []Embed  `json:"embeds,omitempty"`
	AttachedVideoURL string   `json:"attachedVideoUrl,omitempty"`
}

// Snapshot is an immutable rendering of a session at one point in time.
type Snapshot struct {
	SessionID            string        `json:"sessionId"`
	PersonaID            string        `json:"personaId"`
	PersonaName          string        `json:"personaName"`
	AcceptsVideo         bool          `json:"acceptsVideo"`
	Language             string        `json:"language"`
	State                ExchangeState `json:"state"`
	Pending              bool          `json:"pending"`
	CanSend              bool          `json:"canSend"`
	Input                string        `json:"input"`
	StagedAttachment     string        `json:"stagedAttachment,omitempty"`
	ActiveAudioMessageID int64         `json:"activeAudioMessageId,omitempty"`
	Playing              bool          `json:"playing"`
	EmptyHint            string        `json:"emptyHint,omitempty"`
	Messages             []MessageView `json:"messages"`
}

// Find returns the view of message id.
func (s Snapshot) Find(id int64) (MessageView, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return MessageView{}, false
}

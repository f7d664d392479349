package exchange

// Attachment is a user-uploaded video staged for the next turn.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
	// PlaybackURL is the transient local URL the presentation layer derived for the
	// upload; it travels with the persona turn so the video can play next to the audio.
	PlaybackURL string `json:"playbackUrl,omitempty"`
}

// Size returns the attachment payload size in bytes.
func (a *Attachment) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// TextRequest 文本对话请求，对应后端 /voice。
type TextRequest struct {
	PersonaID string `json:"persona_id"`
	Text      string `json:"text"`
}

// VideoRequest 带视频上传的对话请求。
type VideoRequest struct {
	PersonaID string
	Text      string
	Video     *Attachment
}

// Response is the outcome of one exchange.
type Response struct {
	Audio       []byte   `json:"-"`
	AudioFormat string   `json:"audioFormat"`
	Summary     string   `json:"summary,omitempty"`
	References  []string `json:"references,omitempty"`
}

// JSONResponse is the body shape used when the backend answers with application/json
// instead of raw audio.
type JSONResponse struct {
	Audio      string   `json:"audio"`
	Format     string   `json:"format"`
	Summary    string   `json:"summary"`
	References []string `json:"references"`
}

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
)

const (
	endpointSetExpertise   = "/persona/%s/set-expertise"
	endpointSetHumor       = "/persona/%s/set-humor"
	endpointSetExpertLevel = "/persona/%s/set-expert-level"
	endpointSetLanguage    = "/persona/%s/set-language"
	endpointVoice          = "/voice"
	endpointVoiceVideo     = "/persona/%s/voice-video"

	headerReferences = "X-References"
	headerSummary    = "X-Summary"

	maxErrorBody = 4 << 10
)

// Options 网关客户端配置。
type Options struct {
	BaseURL   string
	BackendID string
	// Timeout bounds each request; zero keeps the historical behaviour of waiting forever.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client wraps every outbound call to the remote persona service. It holds no
// conversation state; each method is exactly one request and never retries.
type Client struct {
	baseURL   string
	backendID string
	http      *http.Client
	logger    *zap.Logger
}

// New creates a gateway client.
func New(opts Options) (*Client, error) {
	base, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	backendID := strings.TrimSpace(opts.BackendID)
	if backendID == "" {
		return nil, errors.New("backend persona id is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:   base,
		backendID: backendID,
		http:      httpClient,
		logger:    logger.Named("gateway"),
	}, nil
}

// BackendID returns the backend persona id every request is scoped to.
func (c *Client) BackendID() string { return c.backendID }

// normalizeBaseURL adds a scheme when missing and strips trailing slashes.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// SetExpertise replaces the global expertise domains of the backend persona.
func (c *Client) SetExpertise(ctx context.Context, domains []exchange.Expertise) error {
	tags := make([]string, 0, len(domains))
	for _, d := range domains {
		tags = append(tags, string(d))
	}
	return c.postConfig(ctx, "set expertise", endpointSetExpertise, map[string]any{"expertise": tags})
}

// SetHumor sets the global humor style.
func (c *Client) SetHumor(ctx context.Context, humor exchange.Humor) error {
	return c.postConfig(ctx, "set humor", endpointSetHumor, map[string]any{"humor": string(humor)})
}

// SetExpertLevel sets the global proficiency level.
func (c *Client) SetExpertLevel(ctx context.Context, level exchange.ExpertLevel) error {
	return c.postConfig(ctx, "set expert level", endpointSetExpertLevel, map[string]any{"expert_level": string(level)})
}

// SetLanguage sets the global reply language.
func (c *Client) SetLanguage(ctx context.Context, language exchange.Language) error {
	return c.postConfig(ctx, "set language", endpointSetLanguage, map[string]any{"language": string(language)})
}

func (c *Client) postConfig(ctx context.Context, op, endpoint string, payload map[string]any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return apperr.ConfigUpdate(op, err)
	}

	target := c.baseURL + fmt.Sprintf(endpoint, url.PathEscape(c.backendID))
	resp, err := c.do(ctx, op, http.MethodPost, target, "application/json", bytes.NewReader(body))
	if err != nil {
		return apperr.ConfigUpdate(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("config updated", zap.String("op", op), zap.String("persona", c.backendID))
	return nil
}

// ExchangeText sends one text turn and returns the synthesized reply.
func (c *Client) ExchangeText(ctx context.Context, personaID, text string) (*exchange.Response, error) {
	body, err := sonic.Marshal(exchange.TextRequest{PersonaID: personaID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode voice request: %w", err)
	}

	resp, err := c.do(ctx, "voice", http.MethodPost, c.baseURL+endpointVoice, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeExchange("voice", resp)
}

// ExchangeTextWithVideo sends a text turn together with a video upload. The video is
// validated against the container allow-list and maxBytes before any request is made.
func (c *Client) ExchangeTextWithVideo(ctx context.Context, personaID, text string, video *exchange.Attachment, maxBytes int64) (*exchange.Response, error) {
	if err := ValidateVideo(video, maxBytes); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("persona_id", personaID); err != nil {
		return nil, fmt.Errorf("encode video request: %w", err)
	}
	if err := writer.WriteField("text", text); err != nil {
		return nil, fmt.Errorf("encode video request: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, video.Filename))
	header.Set("Content-Type", videoContentType(video))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("encode video request: %w", err)
	}
	if _, err := part.Write(video.Data); err != nil {
		return nil, fmt.Errorf("encode video request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("encode video request: %w", err)
	}

	target := c.baseURL + fmt.Sprintf(endpointVoiceVideo, url.PathEscape(personaID))
	resp, err := c.do(ctx, "voice with video", http.MethodPost, target, writer.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeExchange("voice with video", resp)
}

// do issues the request and turns transport failures and non-2xx statuses into
// *apperr.NetworkError. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, target, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		c.logger.Warn("backend rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return nil, &apperr.NetworkError{Op: op, Status: resp.StatusCode}
	}

	c.logger.Debug("request done",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}

func decodeExchange(op string, resp *http.Response) (*exchange.Response, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	out := &exchange.Response{
		References: ParseReferences(resp.Header.Get(headerReferences)),
		Summary:    decodeSummary(resp.Header.Get(headerSummary)),
	}

	if mediaType == "application/json" {
		var payload exchange.JSONResponse
		if err := sonic.Unmarshal(data, &payload); err != nil {
			return nil, &apperr.NetworkError{Op: op, Err: fmt.Errorf("decode body: %w", err)}
		}
		audio, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			return nil, &apperr.NetworkError{Op: op, Err: fmt.Errorf("decode audio: %w", err)}
		}
		data = audio
		out.AudioFormat = payload.Format
		if s := strings.TrimSpace(payload.Summary); s != "" {
			out.Summary = s
		}
		if refs := cleanReferences(payload.References); len(refs) > 0 {
			out.References = refs
		}
	} else {
		out.AudioFormat = audioFormat(mediaType)
	}

	if len(data) == 0 {
		return nil, &apperr.NetworkError{Op: op, Err: errors.New("empty audio payload")}
	}
	if out.AudioFormat == "" {
		out.AudioFormat = "mp3"
	}
	out.Audio = data
	return out, nil
}

// ParseReferences splits the comma-separated reference header, trimming entries and
// dropping empty ones.
func ParseReferences(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	return cleanReferences(strings.Split(header, ","))
}

func cleanReferences(raw []string) []string {
	var refs []string
	for _, ref := range raw {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// decodeSummary accepts both plain and percent-encoded header values.
func decodeSummary(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if strings.Contains(header, "%") {
		if decoded, err := url.QueryUnescape(header); err == nil {
			return strings.TrimSpace(decoded)
		}
	}
	return header
}

func audioFormat(mediaType string) string {
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/aac":
		return "aac"
	}
	if rest, ok := strings.CutPrefix(mediaType, "audio/"); ok && rest != "" {
		return rest
	}
	return ""
}

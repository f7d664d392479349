package session

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/mediafirewall/persona-voice/internal/model/chat"
)

const youtubeEmbedBase = "https://www.youtube.com/embed/"

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// SplitSummary breaks a summary into sentence bullets. A sentence ends at '.', '!' or '?'
// followed by whitespace; punctuation stays with its sentence and empty fragments are dropped.
func SplitSummary(summary string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(summary)
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				out = appendFragment(out, string(runes[start:i+1]))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		out = appendFragment(out, string(runes[start:]))
	}
	return out
}

func appendFragment(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// ResolveEmbed maps a YouTube shorts, watch or short-link URL to its embed URL. Any other
// URL is not embeddable. A reference without a scheme is read as https.
func ResolveEmbed(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtube.com":
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			id = strings.TrimSuffix(rest, "/")
		} else if u.Path == "/watch" {
			id = u.Query().Get("v")
		}
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	}

	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return youtubeEmbedBase + id, true
}

// embedsFor resolves references in order, keeping each entry's original index.
func embedsFor(refs []string, expanded func(index int) bool) []chat.Embed {
	var out []chat.Embed
	for i, ref := range refs {
		embed, ok := ResolveEmbed(ref)
		if !ok {
			continue
		}
		out = append(out, chat.Embed{
			Index:     i,
			SourceURL: ref,
			EmbedURL:  embed,
			Expanded:  expanded(i),
		})
	}
	return out
}

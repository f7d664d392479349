package tui

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/service/gateway"
)

// LoadVideo reads a local video file into an attachment. Format and size checks are left
// to the session, which knows the persona's limit.
func LoadVideo(path string) (*exchange.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.InvalidAttachment("resolve %s: %v", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperr.InvalidAttachment("read %s: %v", filepath.Base(path), err)
	}
	return &exchange.Attachment{
		Filename:    filepath.Base(abs),
		ContentType: gateway.VideoContentType(abs),
		Data:        data,
		PlaybackURL: fmt.Sprintf("file://%s", abs),
	}, nil
}

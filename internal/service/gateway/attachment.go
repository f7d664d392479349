package gateway

import (
	"path/filepath"
	"strings"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
)

// 允许上传的视频容器：扩展名 -> 默认 MIME
var videoContainers = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
}

var videoMIMETypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
	"video/x-m4v":     {},
}

// ValidateVideo checks an attachment against the container allow-list and the size
// limit. A non-positive maxBytes disables the size check.
func ValidateVideo(video *exchange.Attachment, maxBytes int64) error {
	if video == nil {
		return apperr.InvalidAttachment("no video attached")
	}
	if video.Size() == 0 {
		return apperr.InvalidAttachment("video %q is empty", video.Filename)
	}
	if maxBytes > 0 && video.Size() > maxBytes {
		return apperr.InvalidAttachment("video %q is %d bytes, limit is %d", video.Filename, video.Size(), maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(video.Filename))
	if _, ok := videoContainers[ext]; !ok {
		return apperr.InvalidAttachment("unsupported video type %q", ext)
	}

	if ct := baseContentType(video.ContentType); ct != "" && ct != "application/octet-stream" {
		if _, ok := videoMIMETypes[ct]; !ok {
			return apperr.InvalidAttachment("unsupported video content type %q", ct)
		}
	}
	return nil
}

func videoContentType(video *exchange.Attachment) string {
	if ct := baseContentType(video.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return VideoContentType(video.Filename)
}

// VideoContentType maps a video filename to its MIME type by extension.
func VideoContentType(filename string) string {
	if ct, ok := videoContainers[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func baseContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
